package batch

import (
	"context"
	"iter"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Skufu/cardiorisk/internal/model"
)

// Assessor produces the result for one complete input.
type Assessor interface {
	Assess(ctx context.Context, in model.ClinicalInput) (*model.Assessment, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency bounds how many rows RunAll assesses at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger; the global zap logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// Runner assesses parsed rows. A failing row never stops the others.
type Runner struct {
	assessor    Assessor
	concurrency int
	log         *zap.Logger
}

// NewRunner creates a runner over a.
func NewRunner(a Assessor, opts ...Option) *Runner {
	r := &Runner{assessor: a, concurrency: 4, log: zap.L()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run yields one record per row, in row order, assessing each row only when
// the consumer asks for it. Ranging over the sequence again re-runs the rows.
func (r *Runner) Run(ctx context.Context, rows []Row) iter.Seq[model.BatchRecord] {
	return func(yield func(model.BatchRecord) bool) {
		for _, row := range rows {
			if !yield(r.process(ctx, row)) {
				return
			}
		}
	}
}

// RunAll assesses rows in parallel and returns the records in row order.
func (r *Runner) RunAll(ctx context.Context, rows []Row) []model.BatchRecord {
	out := make([]model.BatchRecord, len(rows))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, row := range rows {
		g.Go(func() error {
			out[i] = r.process(gCtx, row)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, rec := range out {
		if !rec.OK() {
			failed++
		}
	}
	r.log.Info("batch complete",
		zap.Int("total", len(out)),
		zap.Int("succeeded", len(out)-failed),
		zap.Int("failed", failed),
	)
	return out
}

func (r *Runner) process(ctx context.Context, row Row) model.BatchRecord {
	rec := model.BatchRecord{Row: row.Index, PatientID: row.PatientID}
	if row.Err != nil {
		return withErr(rec, row.Err)
	}
	if err := ctx.Err(); err != nil {
		return withErr(rec, &RowError{Row: row.Index, Err: err})
	}
	a, err := r.assessor.Assess(ctx, row.Input)
	if err != nil {
		r.log.Warn("batch row failed", zap.Int("row", row.Index), zap.Error(err))
		return withErr(rec, &RowError{Row: row.Index, Err: err})
	}
	rec.Assessment = a
	return rec
}

func withErr(rec model.BatchRecord, err error) model.BatchRecord {
	rec.Err = err
	rec.Error = err.Error()
	return rec
}
