// Package transform implements the WilsonScoreInterval table transform: it
// reads a positive-count column and a negative-count column and appends the
// Wilson lower bound as a new column.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/wilson/pkg/frame"
	"github.com/mchmarny/wilson/pkg/metrics"
	"github.com/mchmarny/wilson/pkg/score"
	"golang.org/x/sync/errgroup"
)

const (
	// ClassName identifies the transform in persisted parameters.
	ClassName = "WilsonScoreInterval"

	// minPartitionRows keeps small frames on a single goroutine.
	minPartitionRows = 1024
)

// WilsonScoreInterval scores rows of a frame. Configure it with the chainable
// setters; the three column names are required before Transform.
type WilsonScoreInterval struct {
	uid         string
	positiveCol string
	negativeCol string
	outputCol   string
	confidence  float64
	method      score.Method
	parallelism int
}

// New returns a transform with a random uid and the Compat calculator
// settings.
func New() *WilsonScoreInterval {
	return &WilsonScoreInterval{
		uid:        randomUID(ClassName),
		confidence: score.Compat.Confidence(),
		method:     score.Compat.Method(),
	}
}

func randomUID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + id[len(id)-12:]
}

func (w *WilsonScoreInterval) UID() string {
	return w.uid
}

func (w *WilsonScoreInterval) SetPositiveCol(v string) *WilsonScoreInterval {
	w.positiveCol = v
	return w
}

func (w *WilsonScoreInterval) PositiveCol() string {
	return w.positiveCol
}

func (w *WilsonScoreInterval) SetNegativeCol(v string) *WilsonScoreInterval {
	w.negativeCol = v
	return w
}

func (w *WilsonScoreInterval) NegativeCol() string {
	return w.negativeCol
}

func (w *WilsonScoreInterval) SetOutputCol(v string) *WilsonScoreInterval {
	w.outputCol = v
	return w
}

func (w *WilsonScoreInterval) OutputCol() string {
	return w.outputCol
}

// SetConfidence sets the confidence level in (0,1). It is checked by Validate.
func (w *WilsonScoreInterval) SetConfidence(v float64) *WilsonScoreInterval {
	w.confidence = v
	return w
}

func (w *WilsonScoreInterval) Confidence() float64 {
	return w.confidence
}

func (w *WilsonScoreInterval) SetMethod(m score.Method) *WilsonScoreInterval {
	w.method = m
	return w
}

func (w *WilsonScoreInterval) Method() score.Method {
	return w.method
}

// SetParallelism caps the number of goroutines scoring partitions.
// Zero or less uses GOMAXPROCS.
func (w *WilsonScoreInterval) SetParallelism(n int) *WilsonScoreInterval {
	w.parallelism = n
	return w
}

func (w *WilsonScoreInterval) Parallelism() int {
	return w.parallelism
}

// Validate checks that all required options are set.
func (w *WilsonScoreInterval) Validate() error {
	var missing []string
	if w.positiveCol == "" {
		missing = append(missing, "positiveCol")
	}
	if w.negativeCol == "" {
		missing = append(missing, "negativeCol")
	}
	if w.outputCol == "" {
		missing = append(missing, "outputCol")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", score.ErrConfigurationMissing, strings.Join(missing, ", "))
	}

	if _, err := w.Calculator(); err != nil {
		return err
	}
	return nil
}

// Calculator returns the calculator for the configured confidence and method.
func (w *WilsonScoreInterval) Calculator() (*score.Calculator, error) {
	if w.confidence == score.Compat.Confidence() && w.method == score.Compat.Method() {
		return score.Compat, nil
	}
	return score.NewCalculator(w.confidence, w.method)
}

// TransformSchema returns the output columns for the given input columns.
func (w *WilsonScoreInterval) TransformSchema(columns []string) ([]string, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	has := make(map[string]bool, len(columns))
	for _, c := range columns {
		has[c] = true
	}
	for _, c := range []string{w.positiveCol, w.negativeCol} {
		if !has[c] {
			return nil, fmt.Errorf("%w: input column not found: %s", score.ErrInvalidArgument, c)
		}
	}
	if has[w.outputCol] {
		return nil, fmt.Errorf("%w: output column already exists: %s", score.ErrInvalidArgument, w.outputCol)
	}

	out := make([]string, 0, len(columns)+1)
	out = append(out, columns...)
	return append(out, w.outputCol), nil
}

// Transform returns a copy of f with the score column appended. Rows keep
// their order; the first row that fails aborts the transform.
func (w *WilsonScoreInterval) Transform(ctx context.Context, f *frame.Frame) (*frame.Frame, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: frame required", score.ErrInvalidArgument)
	}
	if _, err := w.TransformSchema(f.Columns()); err != nil {
		metrics.ObserveScores(metrics.SurfaceTransform, 0, err)
		return nil, err
	}

	calc, err := w.Calculator()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer metrics.ObserveTransform(start)

	pos, err := f.Column(w.positiveCol)
	if err != nil {
		return nil, err
	}
	neg, err := f.Column(w.negativeCol)
	if err != nil {
		return nil, err
	}

	scores := make([]any, f.Len())
	parts := w.partitions(f.Len())

	slog.Debug("transform",
		"uid", w.uid,
		"rows", f.Len(),
		"partitions", len(parts),
		"calculator", calc.String(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers())
	for _, p := range parts {
		g.Go(func() error {
			for i := p.from; i < p.to; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				s, err := scoreRow(calc, pos[i], neg[i])
				if err != nil {
					return fmt.Errorf("row %d: %w", i, err)
				}
				scores[i] = s
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.ObserveScores(metrics.SurfaceTransform, 0, err)
		return nil, err
	}

	metrics.ObserveScores(metrics.SurfaceTransform, len(scores), nil)
	return f.WithColumn(w.outputCol, scores)
}

func scoreRow(calc *score.Calculator, p, n any) (float64, error) {
	positives, err := frame.Int64(p)
	if err != nil {
		return 0, fmt.Errorf("positives: %w", err)
	}
	negatives, err := frame.Int64(n)
	if err != nil {
		return 0, fmt.Errorf("negatives: %w", err)
	}
	return calc.Score(positives, negatives)
}

type partition struct {
	from, to int
}

func (w *WilsonScoreInterval) workers() int {
	if w.parallelism > 0 {
		return w.parallelism
	}
	return runtime.GOMAXPROCS(0)
}

func (w *WilsonScoreInterval) partitions(rows int) []partition {
	n := w.workers()
	if rows < minPartitionRows*2 || n == 1 {
		return []partition{{0, rows}}
	}
	if limit := rows / minPartitionRows; n > limit {
		n = limit
	}

	size := (rows + n - 1) / n
	parts := make([]partition, 0, n)
	for from := 0; from < rows; from += size {
		parts = append(parts, partition{from, min(from+size, rows)})
	}
	return parts
}
