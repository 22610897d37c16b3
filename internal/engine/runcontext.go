package engine

import (
	"log/slog"
)

// RunContext carries the state shared by everything in one run.
// It is passed explicitly; there is no process-global run state.
type RunContext struct {
	// RunID is stamped on every fact the run writes.
	RunID string

	// Quota is the run-wide call budget.
	Quota *Governor

	// Logger receives structured run logs.
	Logger *slog.Logger
}

// NewRunContext starts a run with a fresh id.
func NewRunContext(gen IDGenerator, quota *Governor, logger *slog.Logger) RunContext {
	if quota == nil {
		quota = NewGovernor(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	runID := gen.Generate()
	return RunContext{
		RunID:  runID,
		Quota:  quota,
		Logger: logger.With("run", runID),
	}
}

// Log returns the run logger, falling back to slog.Default.
func (rc RunContext) Log() *slog.Logger {
	if rc.Logger == nil {
		return slog.Default()
	}
	return rc.Logger
}

// Exhausted reports whether the run's quota is spent.
// A RunContext without a governor is never exhausted.
func (rc RunContext) Exhausted() bool {
	return rc.Quota != nil && rc.Quota.Exhausted()
}
