// Package feed reads open appointment slots from the IND desk availability API.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/appointment-watch/internal/domain"
	"github.com/appointment-watch/internal/metrics"
	"golang.org/x/time/rate"
)

// Sentinel is the anti-JSON-hijacking line the feed puts in front of every body.
const Sentinel = ")]}',\n"

const DefaultBaseURL = "https://oap.ind.nl"

// Archiver keeps a copy of a feed body that could not be parsed.
type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) error
}

// Options configures a Client. Zero values fall back to sensible defaults.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Location   *time.Location // time zone of the feed's calendar dates
	Limiter    *rate.Limiter  // shared outbound throttle; nil means unthrottled
	Archiver   Archiver
	Logger     *slog.Logger
}

// Client fetches slots for one (location, product, persons) tuple per call. It holds no state.
type Client struct {
	baseURL  string
	http     *http.Client
	loc      *time.Location
	limiter  *rate.Limiter
	archiver Archiver
	logger   *slog.Logger
}

func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		http:     opts.HTTPClient,
		loc:      opts.Location,
		limiter:  opts.Limiter,
		archiver: opts.Archiver,
		logger:   opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 20 * time.Second}
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

type slotsResponse struct {
	Status string    `json:"status"`
	Data   []slotDTO `json:"data"`
}

type slotDTO struct {
	Key       string `json:"key"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Parts     int    `json:"parts"`
}

// SlotsURL is the request URL for a lookup.
func (c *Client) SlotsURL(location, productKey string, persons int) string {
	return fmt.Sprintf("%s/oap/api/desks/%s/slots/?productKey=%s&persons=%d",
		c.baseURL, url.PathEscape(location), url.QueryEscape(productKey), persons)
}

// Fetch returns every open slot the feed lists. Any transport failure, non-2xx
// status, empty body or malformed payload is a *domain.FetchError; a failure
// never degrades to an empty list.
func (c *Client) Fetch(ctx context.Context, location, productKey string, persons int) ([]domain.Slot, error) {
	fail := func(status int, err error) error {
		return &domain.FetchError{Location: location, Product: productKey, Persons: persons, Status: status, Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fail(0, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SlotsURL(location, productKey, persons), nil)
	if err != nil {
		return nil, fail(0, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.FeedFetchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, fail(0, err)
	}
	defer resp.Body.Close()
	metrics.FeedFetchDuration.WithLabelValues(strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", truncate(body, 200)))
	}

	slots, err := c.parse(body)
	if err != nil {
		c.archive(ctx, location, productKey, persons, body)
		return nil, fail(resp.StatusCode, err)
	}
	return slots, nil
}

var errEmptyBody = errors.New("empty body")

func (c *Client) parse(body []byte) ([]domain.Slot, error) {
	payload := bytes.TrimSpace(bytes.TrimPrefix(body, []byte(Sentinel)))
	if len(payload) == 0 {
		return nil, errEmptyBody
	}
	var res slotsResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	if res.Status != "" && !strings.EqualFold(res.Status, "OK") {
		return nil, fmt.Errorf("feed status %q", res.Status)
	}

	slots := make([]domain.Slot, 0, len(res.Data))
	for _, d := range res.Data {
		s, err := c.toSlot(d)
		if err != nil {
			return nil, fmt.Errorf("slot %q: %w", d.Key, err)
		}
		slots = append(slots, s)
	}
	return slots, nil
}

func (c *Client) toSlot(d slotDTO) (domain.Slot, error) {
	date, err := time.ParseInLocation("2006-01-02", d.Date, c.loc)
	if err != nil {
		return domain.Slot{}, fmt.Errorf("date: %w", err)
	}
	start, err := clock(d.StartTime)
	if err != nil {
		return domain.Slot{}, fmt.Errorf("start time: %w", err)
	}
	end, err := clock(d.EndTime)
	if err != nil {
		return domain.Slot{}, fmt.Errorf("end time: %w", err)
	}
	return domain.Slot{Key: d.Key, Date: date, Start: start, End: end, Capacity: d.Parts}, nil
}

// clock parses "HH:MM" into an offset from midnight.
func clock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (c *Client) archive(ctx context.Context, location, productKey string, persons int, body []byte) {
	if c.archiver == nil {
		return
	}
	key := fmt.Sprintf("feed/%s/%s/%d/%s.txt", location, productKey, persons, time.Now().UTC().Format("20060102T150405.000000000Z"))
	if err := c.archiver.Archive(ctx, key, body); err != nil {
		c.logger.Warn("could not archive feed body", "key", key, "err", err)
		return
	}
	c.logger.Info("archived unparsable feed body", "key", key)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
