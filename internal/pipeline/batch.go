// Package pipeline holds the per-item batch loop shared by every stage.
//
// Items are processed one at a time, in order. An item ends up skipped
// (outputs already present or inputs missing), failed (error recorded), or
// successful; a failure never stops the items after it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"council-pipeline-go/internal/logger"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

var errSkip = errors.New("skipped")

// Skip returns an error that marks the current item as skipped rather than
// failed.
func Skip(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errSkip, fmt.Sprintf(format, args...))
}

// IsSkip reports whether err was produced by Skip.
func IsSkip(err error) bool {
	return errors.Is(err, errSkip)
}

// ItemResult is the outcome of one item.
type ItemResult struct {
	Key        string `json:"key" yaml:"key"`
	Status     Status `json:"status" yaml:"status"`
	Reason     string `json:"reason,omitempty" yaml:"reason,omitempty"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
}

// Report collects the results of one stage run.
type Report struct {
	Stage      string       `json:"stage" yaml:"stage"`
	RunID      string       `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
	Succeeded  int          `json:"succeeded" yaml:"succeeded"`
	Skipped    int          `json:"skipped" yaml:"skipped"`
	Failed     int          `json:"failed" yaml:"failed"`
	Items      []ItemResult `json:"items" yaml:"items"`
}

func NewReport(stage string) *Report {
	return &Report{
		Stage:     stage,
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
}

// Add records one result and updates the counters.
func (r *Report) Add(res ItemResult) {
	switch res.Status {
	case StatusSuccess:
		r.Succeeded++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
	r.Items = append(r.Items, res)
}

// Finish stamps the end time.
func (r *Report) Finish() *Report {
	r.FinishedAt = time.Now()
	return r
}

// Item is one unit of work in a batch.
type Item[T any] struct {
	Key   string
	Value T
}

// Run calls fn for each item in order and records the outcome. It returns
// early only when ctx is cancelled; the report covers the items processed
// so far.
func Run[T any](ctx context.Context, log *logger.Logger, stage string, items []Item[T], fn func(context.Context, T) error) (*Report, error) {
	report := NewReport(stage)
	log = log.With("stage", stage).With("run_id", report.RunID)
	log.WithField("items", len(items)).Info("batch started")

	for i, it := range items {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warn("batch cancelled")
			return report.Finish(), err
		}

		entry := log.WithFields(logrus.Fields{"item": it.Key, "n": i + 1})
		start := time.Now()
		err := fn(ctx, it.Value)
		res := ItemResult{Key: it.Key, DurationMs: time.Since(start).Milliseconds()}

		switch {
		case err == nil:
			res.Status = StatusSuccess
			entry.WithField("duration_ms", res.DurationMs).Info("item done")
		case IsSkip(err):
			res.Status = StatusSkipped
			res.Reason = err.Error()
			entry.WithField("reason", res.Reason).Info("item skipped")
		default:
			res.Status = StatusFailed
			res.Reason = err.Error()
			entry.WithField("error", err.Error()).Error("item failed")
		}
		report.Add(res)
	}

	report.Finish()
	log.WithFields(logrus.Fields{
		"succeeded": report.Succeeded,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
	}).Info("batch finished")
	return report, nil
}
