package pipeline

import (
	"context"
	"testing"

	"github.com/mchmarny/wilson/pkg/frame"
	"github.com/mchmarny/wilson/pkg/score"
	"github.com/mchmarny/wilson/pkg/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.New("docId", "positives", "negatives")
	require.NoError(t, err)
	require.NoError(t, f.Append(int64(1), int64(2), int64(1)))
	require.NoError(t, f.Append(int64(2), int64(20), int64(10)))
	require.NoError(t, f.Append(int64(2), int64(200), int64(100)))
	require.NoError(t, f.Append(int64(2), int64(2000), int64(1000)))
	return f
}

// maxEstimator fits a transform that flags rows whose column equals the max
// seen during Fit.
type maxEstimator struct {
	col     string
	fitSeen []string
}

func (e *maxEstimator) UID() string { return "maxEstimator_1" }

func (e *maxEstimator) Fit(_ context.Context, f *frame.Frame) (Transformer, error) {
	e.fitSeen = f.Columns()
	vals, err := f.Column(e.col)
	if err != nil {
		return nil, err
	}
	var top float64
	for _, v := range vals {
		if x, ok := v.(float64); ok && x > top {
			top = x
		}
	}
	return &maxFlag{col: e.col, top: top}, nil
}

type maxFlag struct {
	col string
	top float64
}

func (m *maxFlag) UID() string { return "maxFlag_1" }

func (m *maxFlag) Transform(_ context.Context, f *frame.Frame) (*frame.Frame, error) {
	vals, err := f.Column(m.col)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v == m.top
	}
	return f.WithColumn("best", out)
}

type badStage struct{}

func (badStage) UID() string { return "bad" }

func TestPipeline_SingleTransformer(t *testing.T) {
	df := createTestFrame(t)
	wilson := transform.New().
		SetPositiveCol("positives").
		SetNegativeCol("negatives").
		SetOutputCol("score")

	model, err := New().SetStages(wilson).Fit(context.Background(), df)
	require.NoError(t, err)
	require.Len(t, model.Stages(), 1)

	out, err := model.Transform(context.Background(), df)
	require.NoError(t, err)

	scores, err := out.Column("score")
	require.NoError(t, err)
	expected := []float64{0.22328763310073402, 0.553022430377575, 0.6316800063346981, 0.6556334308906774}
	for i, want := range expected {
		assert.InDelta(t, want, scores[i], 1e-5)
	}
}

func TestPipeline_EstimatorAfterTransformer(t *testing.T) {
	df := createTestFrame(t)
	wilson := transform.New().
		SetPositiveCol("positives").
		SetNegativeCol("negatives").
		SetOutputCol("score")
	est := &maxEstimator{col: "score"}

	model, err := New().SetStages(wilson, est).Fit(context.Background(), df)
	require.NoError(t, err)
	assert.Contains(t, est.fitSeen, "score")

	out, err := model.Transform(context.Background(), df)
	require.NoError(t, err)
	best, err := out.Column("best")
	require.NoError(t, err)
	assert.Equal(t, []any{false, false, false, true}, best)
}

func TestPipeline_Errors(t *testing.T) {
	df := createTestFrame(t)

	_, err := New().SetStages(badStage{}).Fit(context.Background(), df)
	assert.ErrorIs(t, err, score.ErrInvalidArgument)

	// the unconfigured transform must be applied to fit the estimator after it
	_, err = New().SetStages(transform.New(), &maxEstimator{col: "score"}).Fit(context.Background(), df)
	assert.ErrorIs(t, err, score.ErrConfigurationMissing)

	model, err := New().SetStages(transform.New()).Fit(context.Background(), df)
	require.NoError(t, err)
	_, err = model.Transform(context.Background(), df)
	assert.ErrorIs(t, err, score.ErrConfigurationMissing)
}
