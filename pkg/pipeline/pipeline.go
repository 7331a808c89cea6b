// Package pipeline chains table stages. Estimators are fitted in order on the
// output of the stages before them; transformers pass through unchanged.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchmarny/wilson/pkg/frame"
	"github.com/mchmarny/wilson/pkg/score"
)

// Stage is any pipeline element.
type Stage interface {
	UID() string
}

// Transformer maps a frame to a new frame.
type Transformer interface {
	Stage
	Transform(ctx context.Context, f *frame.Frame) (*frame.Frame, error)
}

// Estimator produces a Transformer from a frame.
type Estimator interface {
	Stage
	Fit(ctx context.Context, f *frame.Frame) (Transformer, error)
}

// Pipeline is an ordered list of stages.
type Pipeline struct {
	stages []Stage
}

func New() *Pipeline {
	return &Pipeline{}
}

// SetStages replaces the stages of the pipeline.
func (p *Pipeline) SetStages(stages ...Stage) *Pipeline {
	p.stages = append([]Stage(nil), stages...)
	return p
}

func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Fit fits every estimator and returns the resulting model. A frame is only
// transformed when a later stage still needs fitting.
func (p *Pipeline) Fit(ctx context.Context, f *frame.Frame) (*Model, error) {
	lastEstimator := -1
	for i, s := range p.stages {
		switch s.(type) {
		case Estimator:
			lastEstimator = i
		case Transformer:
		default:
			return nil, fmt.Errorf("%w: stage %d (%T) is neither estimator nor transformer",
				score.ErrInvalidArgument, i, s)
		}
	}

	fitted := make([]Transformer, 0, len(p.stages))
	cur := f
	for i, s := range p.stages {
		var t Transformer
		if e, ok := s.(Estimator); ok {
			slog.Debug("fitting stage", "index", i, "uid", e.UID())
			var err error
			if t, err = e.Fit(ctx, cur); err != nil {
				return nil, fmt.Errorf("fitting stage %s: %w", e.UID(), err)
			}
		} else {
			t = s.(Transformer)
		}

		if i < lastEstimator {
			var err error
			if cur, err = t.Transform(ctx, cur); err != nil {
				return nil, fmt.Errorf("transforming stage %s: %w", t.UID(), err)
			}
		}
		fitted = append(fitted, t)
	}

	return &Model{stages: fitted}, nil
}

// Model is a fitted pipeline.
type Model struct {
	stages []Transformer
}

func (m *Model) Stages() []Transformer {
	return append([]Transformer(nil), m.stages...)
}

// Transform runs the fitted stages in order.
func (m *Model) Transform(ctx context.Context, f *frame.Frame) (*frame.Frame, error) {
	cur := f
	for _, t := range m.stages {
		var err error
		if cur, err = t.Transform(ctx, cur); err != nil {
			return nil, fmt.Errorf("stage %s: %w", t.UID(), err)
		}
	}
	return cur, nil
}
