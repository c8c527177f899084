// Package assessment turns a complete clinical input into the result shown to the user.
package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skufu/cardiorisk/internal/model"
	"github.com/Skufu/cardiorisk/internal/override"
	"github.com/Skufu/cardiorisk/internal/predict"
)

// Recorder persists completed assessments.
type Recorder interface {
	Add(ctx context.Context, e model.HistoryEntry) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHistory records every successful assessment.
func WithHistory(r Recorder) Option {
	return func(p *Pipeline) {
		p.history = r
	}
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithLogger sets the logger; the global zap logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// Pipeline runs prediction then the override layer.
type Pipeline struct {
	predictor predict.Predictor
	engine    *override.Engine
	history   Recorder
	now       func() time.Time
	log       *zap.Logger
}

// NewPipeline builds a pipeline over a predictor and rule engine.
func NewPipeline(p predict.Predictor, e *override.Engine, opts ...Option) *Pipeline {
	pl := &Pipeline{
		predictor: p,
		engine:    e,
		now:       time.Now,
		log:       zap.L(),
	}
	for _, opt := range opts {
		opt(pl)
	}
	return pl
}

// WithoutHistory returns a copy of p that records nothing. Batch runs use it.
func (p *Pipeline) WithoutHistory() *Pipeline {
	cp := *p
	cp.history = nil
	return &cp
}

// Rules exposes the active override rules.
func (p *Pipeline) Rules() []override.Rule {
	return p.engine.Rules()
}

// Assess predicts, applies overrides and builds the displayed result.
// Prediction errors are returned unchanged so callers can tell them apart.
func (p *Pipeline) Assess(ctx context.Context, in model.ClinicalInput) (*model.Assessment, error) {
	pred, err := p.predictor.Predict(ctx, in)
	if err != nil {
		return nil, err
	}

	flags := p.engine.Apply(in, pred)
	final := override.FinalTier(pred.Tier, flags)
	a := &model.Assessment{
		Input:           in,
		Prediction:      pred,
		Flags:           flags,
		FinalTier:       final,
		RiskFactors:     RiskFactors(in),
		Recommendations: Recommendations(final, in),
		AssessedAt:      p.now().UTC(),
	}

	if len(flags) > 0 {
		p.log.Info("override flags raised",
			zap.String("model_tier", string(pred.Tier)),
			zap.String("final_tier", string(final)),
			zap.Int("flags", len(flags)),
		)
	}

	if p.history != nil {
		if err := p.history.Add(ctx, Entry(a)); err != nil {
			p.log.Warn("history write failed", zap.Error(err))
		}
	}
	return a, nil
}

// Entry converts an assessment into its history record.
func Entry(a *model.Assessment) model.HistoryEntry {
	return model.HistoryEntry{
		ID:         uuid.NewString(),
		Summary:    Summary(a.Input),
		ModelTier:  a.Prediction.Tier,
		Confidence: a.Prediction.Confidence,
		FinalTier:  a.FinalTier,
		FlagCount:  len(a.Flags),
		CreatedAt:  a.AssessedAt,
	}
}

// Summary is a one-line description of the input for history lists.
func Summary(in model.ClinicalInput) string {
	sex := "F"
	if in.Sex == 1 {
		sex = "M"
	}
	return fmt.Sprintf("%dy %s, BP %d, chol %d, max HR %d", in.Age, sex, in.RestingBP, in.Cholesterol, in.MaxHeartRate)
}
