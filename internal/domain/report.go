package domain

import "time"

// Outcome is the terminal state of one subscription within a poll cycle.
type Outcome string

const (
	OutcomeMatchedNotified Outcome = "matched-notified"
	OutcomeNoMatch         Outcome = "no-match"
	OutcomeFetchFailed     Outcome = "fetch-failed"
	OutcomeDispatchFailed  Outcome = "dispatch-failed"
)

// SubscriptionResult records what happened to one subscription in a cycle.
type SubscriptionResult struct {
	SubscriptionID string  `json:"subscription_id"`
	Address        string  `json:"address"`
	Outcome        Outcome `json:"outcome"`
	Slot           *Slot   `json:"slot,omitempty"`
	RemainingQuota int     `json:"remaining_quota"`
	Err            string  `json:"error,omitempty"`
	QuotaErr       string  `json:"quota_error,omitempty"`
}

// DeleteFailure is an expired record that could not be removed this cycle.
type DeleteFailure struct {
	SubscriptionID string `json:"subscription_id"`
	Err            string `json:"error"`
}

// CycleReport aggregates one poll cycle. It is logged and exported as metrics, never stored.
type CycleReport struct {
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
	Scanned        int                  `json:"scanned"`
	Purged         int                  `json:"purged"`
	DeleteFailures []DeleteFailure      `json:"delete_failures,omitempty"`
	Results        []SubscriptionResult `json:"results"`
	Counts         map[Outcome]int      `json:"counts"`
}

// Add appends r and bumps its outcome counter.
func (c *CycleReport) Add(r SubscriptionResult) {
	if c.Counts == nil {
		c.Counts = make(map[Outcome]int)
	}
	c.Results = append(c.Results, r)
	c.Counts[r.Outcome]++
}

// Result returns the entry for a subscription id.
func (c *CycleReport) Result(subscriptionID string) (SubscriptionResult, bool) {
	for _, r := range c.Results {
		if r.SubscriptionID == subscriptionID {
			return r, true
		}
	}
	return SubscriptionResult{}, false
}
