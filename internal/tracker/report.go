package tracker

import (
	"time"

	"pricewatch/internal/services"
)

// Status is the final state of a store within a cycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StoreResult is what happened to one store during a cycle.
type StoreResult struct {
	Alias     string `json:"alias"`
	Label     string `json:"label"`
	URL       string `json:"url"`
	UnitCount int    `json:"unit_count"`
	Status    Status `json:"status"`
	Attempts  int    `json:"attempts"`

	Name       string   `json:"name,omitempty"`
	Official   float64  `json:"official,omitempty"`
	Discounted *float64 `json:"discounted,omitempty"`

	Alerted      bool    `json:"alerted"`
	Reason       string  `json:"reason,omitempty"`
	Reference    float64 `json:"reference,omitempty"`
	Notified     bool    `json:"notified"`
	NotifyFailed bool    `json:"notify_failed"`

	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`
	Err     error         `json:"-"`
}

func newResult(t services.Target) StoreResult {
	return StoreResult{
		Alias:     t.Alias,
		Label:     t.Label(),
		URL:       t.URL,
		UnitCount: t.UnitCount,
		Status:    StatusPending,
	}
}

// CycleReport aggregates one cycle. Processed counts stores that were
// started; Alerted counts alert decisions that fired, delivered or not.
type CycleReport struct {
	Processed      int           `json:"processed"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	Alerted        int           `json:"alerted"`
	NotifyFailures int           `json:"notify_failures"`
	Skipped        int           `json:"skipped"`
	Cancelled      bool          `json:"cancelled"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Duration       time.Duration `json:"duration"`
	Error          string        `json:"error,omitempty"`
	Results        []StoreResult `json:"results"`
}

// OK reports whether every started store succeeded and the run could list
// its stores.
func (r *CycleReport) OK() bool {
	return r.Error == "" && r.Failed == 0
}

func (r *CycleReport) tally() {
	for _, res := range r.Results {
		switch res.Status {
		case StatusSucceeded:
			r.Processed++
			r.Succeeded++
		case StatusFailed:
			r.Processed++
			r.Failed++
		case StatusSkipped:
			r.Skipped++
		}
		if res.Alerted {
			r.Alerted++
		}
		if res.NotifyFailed {
			r.NotifyFailures++
		}
	}
}
