package data

import (
	"context"
	"testing"

	"github.com/mchmarny/wilson/pkg/frame"
	"github.com/mchmarny/wilson/pkg/score"
	"github.com/mchmarny/wilson/pkg/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankObservations(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)

	list, err := RankObservations(db, 0)
	require.NoError(t, err)
	require.Len(t, list, 4)

	assert.Equal(t, "doc-4", list[0].Item)
	assert.InDelta(t, 0.6556334308906774, list[0].Score, 1e-5)
	assert.Equal(t, "doc-1", list[3].Item)
	assert.InDelta(t, 0.22328763310073402, list[3].Score, 1e-5)

	list, err = RankObservations(db, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRankObservations_NilDB(t *testing.T) {
	_, err := RankObservations(nil, 10)
	assert.Error(t, err)
}

func TestSaveObservations_Upsert(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)

	f, err := frame.New("docId", "positives", "negatives")
	require.NoError(t, err)
	require.NoError(t, f.Append("doc-1", int64(0), int64(0)))
	_, err = SaveObservations(db, f, "docId", "positives", "negatives")
	require.NoError(t, err)

	state, err := GetDataState(db)
	require.NoError(t, err)
	assert.Equal(t, int64(4), state["observations"])

	list, err := RankObservations(db, 10)
	require.NoError(t, err)
	last := list[len(list)-1]
	assert.Equal(t, "doc-1", last.Item)
	assert.Equal(t, 0.0, last.Score)
}

func TestSaveObservations_Errors(t *testing.T) {
	db := setupTestDB(t)

	f, err := frame.New("docId", "positives", "negatives")
	require.NoError(t, err)
	require.NoError(t, f.Append("ok", int64(1), int64(1)))
	require.NoError(t, f.Append("bad", int64(-1), int64(1)))

	_, err = SaveObservations(db, f, "docId", "positives", "negatives")
	assert.ErrorIs(t, err, score.ErrInvalidArgument)

	// the transaction was rolled back
	state, err := GetDataState(db)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state["observations"])

	_, err = SaveObservations(db, f, "", "positives", "negatives")
	assert.ErrorIs(t, err, score.ErrConfigurationMissing)

	_, err = SaveObservations(db, f, "docId", "likes", "negatives")
	assert.ErrorIs(t, err, score.ErrInvalidArgument)

	_, err = SaveObservations(nil, f, "docId", "positives", "negatives")
	assert.Error(t, err)
}

func TestQuery_MatchesTransform(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)

	sqlFrame, err := Query(db, `SELECT item, positives, negatives,
		wilson_score_interval(positives, negatives) AS score
		FROM observation ORDER BY id`)
	require.NoError(t, err)
	assert.Equal(t, []string{"item", "positives", "negatives", "score"}, sqlFrame.Columns())
	require.Equal(t, 4, sqlFrame.Len())

	in, err := Query(db, "SELECT item, positives, negatives FROM observation ORDER BY id")
	require.NoError(t, err)
	out, err := transform.New().
		SetPositiveCol("positives").
		SetNegativeCol("negatives").
		SetOutputCol("score").
		Transform(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, out.Records(), sqlFrame.Records())
}

func TestQuery_Errors(t *testing.T) {
	db := setupTestDB(t)

	_, err := Query(db, "")
	assert.ErrorIs(t, err, score.ErrInvalidArgument)

	_, err = Query(db, "SELECT * FROM missing_table")
	assert.Error(t, err)

	_, err = Query(nil, "SELECT 1")
	assert.Error(t, err)
}

func TestQuery_UnnamedColumns(t *testing.T) {
	db := setupTestDB(t)

	f, err := Query(db, "SELECT 1 AS a, 2 AS a, 'x'")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "col_2", "'x'"}, f.Columns())
	assert.Equal(t, []any{int64(1), int64(2), "x"}, f.Row(0))
}

func TestGetDataState(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)

	state, err := GetDataState(db)
	require.NoError(t, err)
	assert.Equal(t, int64(4), state["observations"])
	assert.Equal(t, int64(2222), state["positives"])
	assert.Equal(t, int64(1111), state["negatives"])

	_, err = GetDataState(nil)
	assert.Error(t, err)
}
