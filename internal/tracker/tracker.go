// Package tracker runs the price pipeline: extract each configured store with
// bounded retry, decide on an alert, notify, and append the observation.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pricewatch/internal/alert"
	apperrors "pricewatch/internal/errors"
	"pricewatch/internal/models"
	"pricewatch/internal/notify"
	"pricewatch/internal/retry"
	"pricewatch/internal/services"
	"pricewatch/internal/source"
)

// DefaultStoreDelay paces consecutive stores.
const DefaultStoreDelay = 2 * time.Second

// DefaultNotifyTimeout bounds one notification delivery.
const DefaultNotifyTimeout = 30 * time.Second

// Catalog is the part of the catalog service the tracker needs.
type Catalog interface {
	ListTargets(ctx context.Context, aliases ...string) ([]services.Target, error)
	LastObservation(ctx context.Context, url string) (*models.PriceObservation, error)
	RecordObservation(ctx context.Context, url, name string, official float64, discounted *float64) (*models.PriceObservation, error)
}

// Recorder receives per-store and per-cycle measurements.
type Recorder interface {
	StoreDone(outcome string, attempts int, elapsed time.Duration)
	AlertFired(reason string)
	NotifyFailed()
	CycleDone(failed int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) StoreDone(string, int, time.Duration) {}
func (nopRecorder) AlertFired(string)                    {}
func (nopRecorder) NotifyFailed()                        {}
func (nopRecorder) CycleDone(int, time.Duration)         {}

// Options tune a Tracker. Zero values take the defaults.
type Options struct {
	// Workers bounds concurrent stores. 1 processes stores in order.
	Workers int
	// Policy is the extraction retry policy. Defaults to retry.Default().
	Policy *retry.Policy
	// StoreDelay is waited between starting consecutive stores.
	StoreDelay time.Duration
	// Sleep waits between stores. Nil uses retry.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// Recorder receives metrics. Nil discards them.
	Recorder Recorder
	// NotifyTimeout bounds each notification. Defaults to DefaultNotifyTimeout.
	NotifyTimeout time.Duration
}

// Tracker holds only its injected collaborators, so one instance can serve
// a single run or be reused across many.
type Tracker struct {
	catalog  Catalog
	source   source.Source
	notifier notify.Notifier
	log      *zap.SugaredLogger

	workers    int
	policy     retry.Policy
	storeDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	recorder   Recorder

	notifyTimeout time.Duration
}

// New creates a Tracker. A nil notifier disables notifications. Sources
// that do not declare themselves concurrency safe are serialized.
func New(catalog Catalog, src source.Source, notifier notify.Notifier, log *zap.SugaredLogger, opts Options) *Tracker {
	t := &Tracker{
		catalog:    catalog,
		source:     src,
		notifier:   notifier,
		log:        log,
		workers:    opts.Workers,
		policy:     retry.Default(),
		storeDelay: opts.StoreDelay,
		sleep:      opts.Sleep,
		recorder:   opts.Recorder,

		notifyTimeout: opts.NotifyTimeout,
	}
	if opts.Policy != nil {
		t.policy = *opts.Policy
	}
	if t.workers < 1 {
		t.workers = 1
	}
	if t.storeDelay < 0 {
		t.storeDelay = 0
	}
	if t.notifyTimeout <= 0 {
		t.notifyTimeout = DefaultNotifyTimeout
	}
	if t.sleep == nil {
		t.sleep = retry.Sleep
	}
	if t.recorder == nil {
		t.recorder = nopRecorder{}
	}
	if t.log == nil {
		t.log = zap.NewNop().Sugar()
	}
	if !source.IsConcurrencySafe(src) {
		t.source = &lockedSource{src: src}
	}
	return t
}

// RunAll lists the catalog targets, optionally restricted to aliases, and
// runs one cycle over them. A listing failure yields an empty report that
// carries the error.
func (t *Tracker) RunAll(ctx context.Context, aliases ...string) *CycleReport {
	targets, err := t.catalog.ListTargets(ctx, aliases...)
	if err != nil {
		t.log.Errorw("Failed to list stores", "error", err)
		now := time.Now()
		return &CycleReport{StartedAt: now, FinishedAt: now, Error: err.Error(), Results: []StoreResult{}}
	}
	return t.RunCycle(ctx, targets)
}

// RunCycle processes every target once. It never returns an error: each
// store's outcome is captured in the report. Cancellation is checked before
// each store starts; stores not started are reported as skipped.
func (t *Tracker) RunCycle(ctx context.Context, targets []services.Target) *CycleReport {
	start := time.Now()
	report := &CycleReport{StartedAt: start, Results: make([]StoreResult, len(targets))}

	if len(targets) == 0 {
		t.log.Infow("No stores configured, nothing to do")
	}

	var g errgroup.Group
	g.SetLimit(t.workers)

	for i, target := range targets {
		if i > 0 && t.storeDelay > 0 {
			if err := t.sleep(ctx, t.storeDelay); err != nil {
				t.skipFrom(report, targets, i)
				break
			}
		}
		if ctx.Err() != nil {
			t.skipFrom(report, targets, i)
			break
		}

		if t.workers == 1 {
			report.Results[i] = t.processStore(ctx, target)
			continue
		}
		g.Go(func() error {
			report.Results[i] = t.processStore(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	report.tally()
	report.Cancelled = ctx.Err() != nil
	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(start)
	t.recorder.CycleDone(report.Failed, report.Duration)

	t.log.Infow("Cycle finished",
		"processed", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"alerted", report.Alerted,
		"notify_failures", report.NotifyFailures,
		"skipped", report.Skipped,
		"cancelled", report.Cancelled,
		"duration", report.Duration,
	)
	return report
}

func (t *Tracker) skipFrom(report *CycleReport, targets []services.Target, from int) {
	t.log.Warnw("Cycle cancelled, skipping remaining stores", "remaining", len(targets)-from)
	for j := from; j < len(targets); j++ {
		report.Results[j] = newResult(targets[j])
		report.Results[j].Status = StatusSkipped
		t.recorder.StoreDone(string(StatusSkipped), 0, 0)
	}
}

// processStore runs one store through extract, decide, notify and record.
func (t *Tracker) processStore(ctx context.Context, target services.Target) StoreResult {
	start := time.Now()
	res := newResult(target)
	log := t.log.With("store", target.Label(), "url", target.URL)

	finish := func(status Status, err error) StoreResult {
		res.Status = status
		res.Elapsed = time.Since(start)
		if err != nil {
			res.Err = err
			res.Error = err.Error()
		}
		t.recorder.StoreDone(string(status), res.Attempts, res.Elapsed)
		return res
	}

	extracted, attempts, err := retry.Do(ctx, t.policy,
		func(ctx context.Context, attempt int) (source.Result, error) {
			r, err := t.source.Extract(ctx, target.URL)
			if err != nil {
				return r, err
			}
			if err := r.Validate(); err != nil {
				return r, err
			}
			return r, nil
		},
		func(attempt int, err error, wait time.Duration) {
			log.Warnw("Extraction failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		},
	)
	res.Attempts = attempts
	if err != nil {
		log.Errorw("Extraction failed", "attempts", attempts, "error", err)
		if apperrors.Code(err) == "" && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = apperrors.Wrap(apperrors.ErrExtraction, err)
		}
		return finish(StatusFailed, err)
	}
	res.Name = extracted.Name
	res.Official = extracted.Official
	res.Discounted = extracted.Discounted

	// A started store always runs to its write: cancelling the cycle past
	// this point must not drop the observation.
	ctx = context.WithoutCancel(ctx)

	// The alert decision uses the history as it was before this write.
	var lastOfficial *float64
	last, err := t.catalog.LastObservation(ctx, target.URL)
	switch {
	case errors.Is(err, apperrors.ErrUnknownStore):
		log.Errorw("Store is not in the catalog, dropping observation", "error", err)
		return finish(StatusFailed, err)
	case err != nil:
		log.Warnw("Could not read last observation, deciding without history", "error", err)
	case last != nil:
		v := last.Official()
		lastOfficial = &v
	}

	decision := alert.Decide(lastOfficial, extracted.Official, extracted.Discounted)
	if decision.Alert {
		res.Alerted = true
		res.Reason = string(decision.Reason)
		res.Reference = decision.Reference
		t.recorder.AlertFired(string(decision.Reason))
		log.Infow("Price alert",
			"reason", decision.Reason,
			"reference", decision.Reference,
			"price", decision.Price,
			"drop_pct", decision.DropPercent(),
		)

		if t.notifier != nil {
			nctx, cancel := context.WithTimeout(ctx, t.notifyTimeout)
			err := t.notifier.Notify(nctx, notify.Alert{
				ProductLabel:   target.Label(),
				ReferencePrice: decision.Reference,
				NewPrice:       decision.Price,
				URL:            target.URL,
				Reason:         string(decision.Reason),
			})
			cancel()
			if err != nil {
				res.NotifyFailed = true
				t.recorder.NotifyFailed()
				log.Warnw("Notification failed", "error", err)
			} else {
				res.Notified = true
			}
		}
	}

	if _, err := t.catalog.RecordObservation(ctx, target.URL, extracted.Name, extracted.Official, extracted.Discounted); err != nil {
		log.Errorw("Failed to record observation", "error", err)
		return finish(StatusFailed, err)
	}

	log.Infow("Price recorded",
		"name", extracted.Name,
		"official", extracted.Official,
		"discounted", extracted.Discounted,
		"attempts", attempts,
	)
	return finish(StatusSucceeded, nil)
}

// lockedSource serializes a source that is not safe for concurrent use.
type lockedSource struct {
	mu  sync.Mutex
	src source.Source
}

func (l *lockedSource) Extract(ctx context.Context, url string) (source.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Extract(ctx, url)
}
