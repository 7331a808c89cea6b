package cli

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mchmarny/wilson/pkg/config"
	"github.com/mchmarny/wilson/pkg/data"
	"github.com/mchmarny/wilson/pkg/frame"
	"github.com/mchmarny/wilson/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T) *http.ServeMux {
	t.Helper()
	dir := t.TempDir()
	cfg := &appConfig{
		Dir:    dir,
		DBPath: filepath.Join(dir, data.DataFileName),
		Config: config.Default(),
	}
	t.Cleanup(cfg.Close)

	db, err := cfg.DB()
	require.NoError(t, err)

	f, err := frame.ReadCSV(strings.NewReader(testCSV))
	require.NoError(t, err)
	_, err = data.SaveObservations(db, f, "docId", "positives", "negatives")
	require.NoError(t, err)

	calc, err := cfg.Config.Calculator()
	require.NoError(t, err)
	return makeRouter(cfg, calc, db)
}

func serve(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestScoreAPI(t *testing.T) {
	mux := setupTestRouter(t)

	rec := serve(mux, http.MethodGet, "/score?positives=20&negatives=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jsonContentType, rec.Header().Get("Content-Type"))

	var res ScoreResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.InDelta(t, expectedScores[1], res.Score, 1e-15)
	assert.Equal(t, score.MethodSimplified, res.Method)

	rec = serve(mux, http.MethodGet, "/score?positives=0&negatives=0", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestScoreAPI_BadRequest(t *testing.T) {
	mux := setupTestRouter(t)

	for _, target := range []string{
		"/score",
		"/score?positives=1",
		"/score?positives=x&negatives=1",
		"/score?positives=1.5&negatives=1",
		"/score?positives=-1&negatives=1",
	} {
		rec := serve(mux, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)

		var res errorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
		assert.NotEmpty(t, res.Error)
	}

	rec := serve(mux, http.MethodPost, "/score?positives=1&negatives=1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTransformAPI(t *testing.T) {
	mux := setupTestRouter(t)

	rec := serve(mux, http.MethodPost,
		"/transform?positive_col=positives&negative_col=negatives&output_col=rank", testCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, csvContentType, rec.Header().Get("Content-Type"))

	f, err := frame.ReadCSV(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, []string{"docId", "positives", "negatives", "rank"}, f.Columns())
	assertScoreColumn(t, f, "rank")
}

func TestTransformAPI_Calculator(t *testing.T) {
	mux := setupTestRouter(t)

	rec := serve(mux, http.MethodPost,
		"/transform?positive_col=positives&negative_col=negatives&output_col=rank&confidence=0.95&method=wilson",
		"positives,negatives\n2,1\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f, err := frame.ReadCSV(rec.Body)
	require.NoError(t, err)
	v, err := f.Value(0, "rank")
	require.NoError(t, err)
	assert.InDelta(t, 0.20765960080204782, cellFloat(t, v), 1e-12)
}

func TestTransformAPI_BadRequest(t *testing.T) {
	mux := setupTestRouter(t)

	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"missing columns", "/transform", testCSV},
		{"empty body", "/transform?positive_col=positives&negative_col=negatives&output_col=rank", ""},
		{"unknown column", "/transform?positive_col=up&negative_col=negatives&output_col=rank", testCSV},
		{"non-numeric cell", "/transform?positive_col=positives&negative_col=negatives&output_col=rank",
			"positives,negatives\nmany,1\n"},
		{"negative count", "/transform?positive_col=positives&negative_col=negatives&output_col=rank",
			"positives,negatives\n-1,1\n"},
		{"bad confidence", "/transform?positive_col=positives&negative_col=negatives&output_col=rank&confidence=x",
			testCSV},
		{"confidence out of range", "/transform?positive_col=positives&negative_col=negatives&output_col=rank&confidence=1",
			testCSV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(mux, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestRankAPI(t *testing.T) {
	mux := setupTestRouter(t)

	rec := serve(mux, http.MethodGet, "/data/rank?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []*data.ScoredItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 3)
	assert.Equal(t, "doc-4", list[0].Item)
	assert.Equal(t, "doc-3", list[1].Item)
	assert.Equal(t, "doc-2", list[2].Item)

	rec = serve(mux, http.MethodGet, "/data/rank", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 4)

	for _, target := range []string{"/data/rank?limit=x", "/data/rank?limit=0"} {
		rec = serve(mux, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestMetricsAPI(t *testing.T) {
	mux := setupTestRouter(t)

	rec := serve(mux, http.MethodGet, "/score?positives=2&negatives=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(mux, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `wilson_scores_total{surface="http"}`)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{score.ErrInvalidArgument, http.StatusBadRequest},
		{score.ErrConfigurationMissing, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, tt.err)
		assert.Equal(t, tt.code, rec.Code, tt.err.Error())
	}
}
