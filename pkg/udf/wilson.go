package udf

import (
	"log/slog"
	"sync"

	"github.com/mchmarny/wilson/pkg/frame"
	"github.com/mchmarny/wilson/pkg/metrics"
	"github.com/mchmarny/wilson/pkg/score"
)

// WilsonScoreIntervalName is the SQL name of the scoring function.
const WilsonScoreIntervalName = "wilson_score_interval"

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process registry with wilson_score_interval bound to
// score.Compat.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		if err := DefineWilsonScore(defaultRegistry, score.Compat); err != nil {
			panic(err)
		}
	})
	return defaultRegistry
}

// DefineWilsonScore registers wilson_score_interval(positives, negatives)
// returning the calculator's score as float64.
func DefineWilsonScore(r *Registry, calc *score.Calculator) error {
	if calc == nil {
		calc = score.Compat
	}
	slog.Debug("defining function", "name", WilsonScoreIntervalName, "calculator", calc.String())

	return r.Register(Function{
		Name:          WilsonScoreIntervalName,
		NumArgs:       2,
		Deterministic: true,
		Fn: func(args ...any) (any, error) {
			s, err := wilsonScore(calc, args[0], args[1])
			metrics.ObserveScores(metrics.SurfaceFunction, 1, err)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	})
}

func wilsonScore(calc *score.Calculator, p, n any) (float64, error) {
	positives, err := frame.Int64(p)
	if err != nil {
		return 0, err
	}
	negatives, err := frame.Int64(n)
	if err != nil {
		return 0, err
	}
	return calc.Score(positives, negatives)
}
