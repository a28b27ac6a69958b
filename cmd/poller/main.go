package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/appointment-watch/internal/application/dispatch"
	"github.com/appointment-watch/internal/application/poll"
	"github.com/appointment-watch/internal/application/reconcile"
	"github.com/appointment-watch/internal/config"
	"github.com/appointment-watch/internal/domain"
	"github.com/appointment-watch/internal/infrastructure/dynamo"
	"github.com/appointment-watch/internal/infrastructure/feed"
	s3infra "github.com/appointment-watch/internal/infrastructure/s3"
	"github.com/appointment-watch/internal/infrastructure/smtp"
	"github.com/appointment-watch/internal/infrastructure/sns"
	"github.com/appointment-watch/internal/metrics"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

var opts struct {
	Console bool
	Once    bool
	Dry     bool
}

var flags = []cli.Flag{
	&cli.BoolFlag{
		Name:        "console",
		Usage:       "run the ticker loop locally instead of the lambda handler",
		EnvVars:     []string{"CONSOLE"},
		Destination: &opts.Console,
	},
	&cli.BoolFlag{
		Name:        "once",
		Usage:       "run a single poll cycle and exit",
		EnvVars:     []string{"ONCE"},
		Destination: &opts.Once,
	},
	&cli.BoolFlag{
		Name:        "dry",
		Usage:       "log alerts instead of sending them and leave the store untouched",
		EnvVars:     []string{"DRY"},
		Destination: &opts.Dry,
	},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	app := &cli.App{
		Name:   "poller",
		Usage:  "watch the appointment feed and alert subscribers",
		Flags:  flags,
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("poller: %v", err)
	}
}

func run(c *cli.Context) error {
	cfg := config.Load()
	if err := cfg.ValidatePoller(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	metrics.Init()

	awsCfg, err := dynamo.AWSConfig(c.Context, cfg)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	dynamoClient := dynamo.NewClient(cfg)
	subs := dynamo.NewSubscriptionRepo(dynamoClient, cfg.DynamoTables.Subscriptions)

	feedClient, err := newFeedClient(cfg, awsCfg)
	if err != nil {
		return err
	}
	sender, err := newSender(cfg, awsCfg)
	if err != nil {
		return err
	}

	var store subscriptionStore = subs
	if opts.Dry {
		store = dryStore{subs}
	}

	deps := poll.Deps{
		Reconciler: reconcile.New(store, slog.Default()),
		Feed:       feedClient,
		Dispatcher: dispatch.New(sender),
		Quota:      store,
		Logger:     slog.Default(),
	}
	if cfg.PollLeaseEnabled {
		deps.Locker = dynamo.NewLeaseRepo(dynamoClient, cfg.DynamoTables.Leases)
	}
	orch := poll.NewOrchestrator(pollConfig(cfg), deps)
	h := NewHandler(orch, slog.Default())

	switch {
	case opts.Once:
		return h.runOnce(c.Context)
	case opts.Console:
		return serveConsole(c.Context, cfg, orch)
	default:
		lambda.Start(h.RunOnce)
	}
	return nil
}

func pollConfig(cfg *config.Config) poll.Config {
	return poll.Config{
		MaxLookaheadDays:         cfg.MaxLookaheadDays,
		MaxSubscriptionsPerCycle: cfg.MaxSubscriptionsPerCycle,
		PollInterval:             cfg.PollInterval(),
		Concurrency:              cfg.PollConcurrency,
		CycleTimeout:             cfg.CycleTimeout(),
	}
}

func newFeedClient(cfg *config.Config, awsCfg aws.Config) (*feed.Client, error) {
	loc, err := time.LoadLocation(cfg.FeedTimezone)
	if err != nil {
		return nil, fmt.Errorf("feed timezone %q: %w", cfg.FeedTimezone, err)
	}
	var archiver feed.Archiver
	if cfg.FeedArchiveBucket != "" {
		archiver = s3infra.NewArchive(s3infra.NewClient(awsCfg, cfg), cfg.FeedArchiveBucket)
	}
	return feed.NewClient(feed.Options{
		BaseURL:    cfg.FeedBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.FeedTimeout},
		Location:   loc,
		Limiter:    rate.NewLimiter(rate.Limit(cfg.FeedRatePerSecond), cfg.FeedBurst),
		Archiver:   archiver,
		Logger:     slog.Default(),
	}), nil
}

func newSender(cfg *config.Config, awsCfg aws.Config) (dispatch.Sender, error) {
	switch {
	case opts.Dry:
		return dispatch.DryRunSender{Logger: slog.Default()}, nil
	case cfg.NotifyChannel == "sns":
		if cfg.SNSTopicARN == "" {
			return nil, errors.New("NOTIFY_CHANNEL=sns needs SNS_TOPIC_ARN")
		}
		return sns.NewTopicSender(sns.NewClient(awsCfg, cfg), cfg.SNSTopicARN), nil
	case cfg.NotifyChannel == "smtp":
		return smtp.NewMailer(cfg), nil
	default:
		return nil, fmt.Errorf("unknown NOTIFY_CHANNEL %q", cfg.NotifyChannel)
	}
}

// serveConsole runs the ticker loop with a metrics endpoint until SIGINT or SIGTERM.
func serveConsole(parent context.Context, cfg *config.Config, orch *poll.Orchestrator) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("Metrics listening on :%s", cfg.MetricsPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	err := orch.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Println("Poller stopped")
	return err
}

type subscriptionStore interface {
	ScanActive(ctx context.Context, maxCount int) ([]domain.Subscription, error)
	Delete(ctx context.Context, sub *domain.Subscription) error
	DecrementQuota(ctx context.Context, sub *domain.Subscription) (int, error)
}

// dryStore reads from the real store but never writes.
type dryStore struct {
	*dynamo.SubscriptionRepo
}

func (d dryStore) Delete(_ context.Context, sub *domain.Subscription) error {
	slog.Info("dry run: subscription not deleted", "subscription_id", sub.RowID)
	return nil
}

func (d dryStore) DecrementQuota(_ context.Context, sub *domain.Subscription) (int, error) {
	return sub.Quota - 1, nil
}
