package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/factmirror/internal/github"
	"github.com/roach88/factmirror/internal/store"
)

// DefaultMaxEvents is the per-repository scan cap.
const DefaultMaxEvents = 1000

// EventSource yields repository events newest first, one page at a time.
// An empty page ends the stream.
type EventSource interface {
	Events(ctx context.Context, repository int64, page int) ([]github.Event, error)
}

// Classifier turns a raw event into a Result. It runs before the claim
// transaction opens, so it may make network calls and read the store.
type Classifier interface {
	Classify(ctx context.Context, rc RunContext, ev github.Event) (Result, error)
}

// Recorder observes loop progress. internal/metrics implements it.
type Recorder interface {
	FactDerived(what string)
	EventDiscarded(eventType string)
	// ScanFinished receives the partial stats when err is set.
	ScanFinished(repository string, stats Stats, err error)
}

// StopReason tells why a scan ended.
type StopReason string

const (
	StopNone      StopReason = ""
	StopEnd       StopReason = "end"       // empty page
	StopLimit     StopReason = "limit"     // per-repository cap reached
	StopQuota     StopReason = "quota"     // governor exhausted
	StopWatermark StopReason = "watermark" // reached an already-processed id
)

// Stats summarizes one repository scan.
type Stats struct {
	Scanned   int
	Derived   int
	Discarded int
	Skipped   int
	// Latest is the greatest event id seen, zero when nothing was scanned.
	Latest  int64
	Stopped StopReason
}

// Loop is the ingestion loop.
//
// For one repository with watermark W it pulls pages newest first and, per
// event: stops at the cap, on quota exhaustion, or at an id below W; skips
// events already committed; classifies; then claims the event id inside a
// transaction and either fills the claim and commits (Derive) or rolls the
// whole transaction back (Discard).
//
// No transaction is held across network calls.
type Loop struct {
	source     EventSource
	store      *store.Store
	classifier Classifier
	watermarks *Watermarks
	maxEvents  int
	recorder   Recorder
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithMaxEvents sets the per-repository scan cap.
func WithMaxEvents(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxEvents = n
		}
	}
}

// WithRecorder reports progress to r.
func WithRecorder(r Recorder) LoopOption {
	return func(l *Loop) {
		l.recorder = r
	}
}

// NewLoop wires the loop to its collaborators.
func NewLoop(source EventSource, s *store.Store, classifier Classifier, opts ...LoopOption) *Loop {
	l := &Loop{
		source:     source,
		store:      s,
		classifier: classifier,
		watermarks: NewWatermarks(s),
		maxEvents:  DefaultMaxEvents,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Scan ingests new events of one repository.
//
// The watermark moves to the greatest id seen when the scan ends on a stop
// condition. When it ends on an error the watermark stays put: committed
// facts remain and the next run re-scans, deduplicating through claims.
func (l *Loop) Scan(ctx context.Context, rc RunContext, repo github.Repository) (Stats, error) {
	logger := rc.Log().With("repository", repo.FullName)

	w, _, err := l.watermarks.Get(ctx, repo.ID)
	if err != nil {
		return Stats{}, l.fail(ErrCodeScanFailed, repo, Stats{}, err)
	}

	var (
		st   Stats
		seen = map[int64]bool{}
		prev int64
	)

pages:
	for page := 1; ; page++ {
		if rc.Exhausted() {
			st.Stopped = StopQuota
			break
		}
		events, err := l.source.Events(ctx, repo.ID, page)
		if github.IsNotFound(err) {
			return st, l.fail(ErrCodeRepositoryMissing, repo, st, err)
		}
		if err != nil {
			return st, l.fail(ErrCodeScanFailed, repo, st, err)
		}
		if len(events) == 0 {
			st.Stopped = StopEnd
			break
		}

		for _, ev := range events {
			if err := ctx.Err(); err != nil {
				return st, l.fail(ErrCodeScanFailed, repo, st, err)
			}
			if st.Scanned >= l.maxEvents {
				logger.Info("scan cap reached", "scanned", st.Scanned)
				st.Stopped = StopLimit
				break pages
			}
			if rc.Exhausted() {
				logger.Info("quota exhausted", "scanned", st.Scanned)
				st.Stopped = StopQuota
				break pages
			}
			if ev.ID < w {
				logger.Debug("reached watermark", "event", ev.ID, "watermark", w)
				st.Stopped = StopWatermark
				break pages
			}
			if seen[ev.ID] {
				// Events that arrived between page fetches shift older
				// events onto the next page.
				continue
			}
			if prev != 0 && ev.ID > prev {
				return st, l.fail(ErrCodeOutOfOrder, repo, st,
					fmt.Errorf("event %d after %d: %w", ev.ID, prev, ErrOutOfOrder))
			}
			seen[ev.ID] = true
			prev = ev.ID
			st.Scanned++
			st.Latest = max(st.Latest, ev.ID)

			if err := l.process(ctx, rc, logger, repo, ev, &st); err != nil {
				return st, l.fail(ErrCodeScanFailed, repo, st, err)
			}
		}
	}

	if st.Scanned > 0 && st.Latest > w {
		if err := l.watermarks.Set(ctx, repo.ID, st.Latest); err != nil {
			return st, l.fail(ErrCodeScanFailed, repo, st, err)
		}
	}
	logger.Info("repository scanned",
		"scanned", st.Scanned,
		"derived", st.Derived,
		"discarded", st.Discarded,
		"skipped", st.Skipped,
		"latest", st.Latest,
		"stopped", string(st.Stopped))
	if l.recorder != nil {
		l.recorder.ScanFinished(repo.FullName, st, nil)
	}
	return st, nil
}

// process handles one event: fast-path skip, classify, claim, commit.
func (l *Loop) process(ctx context.Context, rc RunContext, logger *slog.Logger, repo github.Repository, ev github.Event, st *Stats) error {
	has, err := l.store.HasEvent(ctx, ev.ID)
	if err != nil {
		return err
	}
	if has {
		st.Skipped++
		logger.Debug("event already processed", "event", ev.ID)
		return nil
	}

	res, err := l.classifier.Classify(ctx, rc, ev)
	if err != nil {
		return fmt.Errorf("classify event %d: %w", ev.ID, err)
	}

	txn, err := l.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	claim, err := txn.Claim(ctx, ev.ID, rc.RunID)
	if errors.Is(err, store.ErrAlreadyClaimed) {
		st.Skipped++
		logger.Debug("event claimed elsewhere", "event", ev.ID)
		return nil
	}
	if err != nil {
		return err
	}

	f, ok := res.Derived()
	if !ok {
		st.Discarded++
		logger.Debug("event discarded", "event", ev.ID, "type", ev.Type, "reason", res.Reason())
		if l.recorder != nil {
			l.recorder.EventDiscarded(ev.Type)
		}
		return txn.Rollback()
	}

	if f.Repository == 0 {
		f.Repository = repo.ID
	}
	if err := txn.Fill(ctx, claim, f); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	st.Derived++
	logger.Info("detected new event", "event", ev.ID, "type", ev.Type, "what", f.What)
	if l.recorder != nil {
		l.recorder.FactDerived(f.What)
	}
	return nil
}

// fail wraps err and reports the partial stats of the scan.
func (l *Loop) fail(code RunErrorCode, repo github.Repository, st Stats, err error) error {
	re := &RunError{Code: code, Repository: repo.FullName, Err: err}
	if l.recorder != nil {
		l.recorder.ScanFinished(repo.FullName, st, re)
	}
	return re
}

// RepoReport is the outcome of one repository within a run.
type RepoReport struct {
	Repository github.Repository
	Stats      Stats
	Err        error
}

// RunReport summarizes a run over several repositories.
type RunReport struct {
	RunID        string
	Repositories []RepoReport
	// Unscheduled lists repositories skipped because the quota ran out.
	Unscheduled []github.Repository
}

// Failed returns the number of repositories whose scan failed.
func (r RunReport) Failed() int {
	n := 0
	for _, rr := range r.Repositories {
		if rr.Err != nil {
			n++
		}
	}
	return n
}

// Totals sums the stats of every repository.
func (r RunReport) Totals() Stats {
	var t Stats
	for _, rr := range r.Repositories {
		t.Scanned += rr.Stats.Scanned
		t.Derived += rr.Stats.Derived
		t.Discarded += rr.Stats.Discarded
		t.Skipped += rr.Stats.Skipped
	}
	return t
}

// Run scans repositories sequentially. A failing repository does not stop
// the others; an exhausted governor stops scheduling new ones.
func (l *Loop) Run(ctx context.Context, rc RunContext, repos []github.Repository) RunReport {
	report := RunReport{RunID: rc.RunID}
	for i, repo := range repos {
		if rc.Exhausted() {
			report.Unscheduled = append(report.Unscheduled, repos[i:]...)
			rc.Log().Info("quota exhausted, stopping run", "unscheduled", len(repos)-i)
			break
		}
		if ctx.Err() != nil {
			report.Unscheduled = append(report.Unscheduled, repos[i:]...)
			break
		}
		st, err := l.Scan(ctx, rc, repo)
		if err != nil {
			rc.Log().Error("repository scan failed", "repository", repo.FullName, "error", err)
		}
		report.Repositories = append(report.Repositories, RepoReport{Repository: repo, Stats: st, Err: err})
	}
	return report
}
