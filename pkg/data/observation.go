package data

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mchmarny/wilson/pkg/frame"
	"github.com/mchmarny/wilson/pkg/score"
)

const (
	rankLimitDefault = 100

	insertObservationSQL = `INSERT INTO observation (item, positives, negatives, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(item) DO UPDATE SET
			positives = excluded.positives,
			negatives = excluded.negatives,
			updated_at = excluded.updated_at
	`

	selectRankSQL = `SELECT
			item,
			positives,
			negatives,
			wilson_score_interval(positives, negatives) AS score
		FROM observation
		ORDER BY score DESC, item ASC
		LIMIT ?
	`
)

// ScoredItem is an observation with its score.
type ScoredItem struct {
	Item      string  `json:"item" yaml:"item"`
	Positives int64   `json:"positives" yaml:"positives"`
	Negatives int64   `json:"negatives" yaml:"negatives"`
	Score     float64 `json:"score" yaml:"score"`
}

// SaveObservations upserts one observation per row of f in a single
// transaction and returns the number of rows saved.
func SaveObservations(db *sql.DB, f *frame.Frame, itemCol, positiveCol, negativeCol string) (int, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}
	if f == nil {
		return 0, fmt.Errorf("%w: frame required", score.ErrInvalidArgument)
	}
	if itemCol == "" || positiveCol == "" || negativeCol == "" {
		return 0, fmt.Errorf("%w: item, positive and negative columns are all required",
			score.ErrConfigurationMissing)
	}
	for _, c := range []string{itemCol, positiveCol, negativeCol} {
		if !f.Has(c) {
			return 0, fmt.Errorf("%w: column not found: %s", score.ErrInvalidArgument, c)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(insertObservationSQL)
	if err != nil {
		rollbackTransaction(tx)
		return 0, fmt.Errorf("failed to prepare observation insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i := 0; i < f.Len(); i++ {
		item, pos, neg, err := observationRow(f, i, itemCol, positiveCol, negativeCol)
		if err != nil {
			rollbackTransaction(tx)
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		if _, err = stmt.Exec(item, pos, neg, now); err != nil {
			rollbackTransaction(tx)
			return 0, fmt.Errorf("failed to insert observation %s: %w", item, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Debug("observations saved", "rows", f.Len())
	return f.Len(), nil
}

func observationRow(f *frame.Frame, i int, itemCol, positiveCol, negativeCol string) (string, int64, int64, error) {
	iv, err := f.Value(i, itemCol)
	if err != nil {
		return "", 0, 0, err
	}
	if iv == nil || iv == "" {
		return "", 0, 0, fmt.Errorf("%w: empty item", score.ErrInvalidArgument)
	}
	item := fmt.Sprint(iv)

	pv, err := f.Value(i, positiveCol)
	if err != nil {
		return "", 0, 0, err
	}
	pos, err := frame.Int64(pv)
	if err != nil {
		return "", 0, 0, fmt.Errorf("positives: %w", err)
	}

	nv, err := f.Value(i, negativeCol)
	if err != nil {
		return "", 0, 0, err
	}
	neg, err := frame.Int64(nv)
	if err != nil {
		return "", 0, 0, fmt.Errorf("negatives: %w", err)
	}

	if pos < 0 || neg < 0 {
		return "", 0, 0, fmt.Errorf("%w: counts must be non-negative (positives=%d, negatives=%d)",
			score.ErrInvalidArgument, pos, neg)
	}
	return item, pos, neg, nil
}

// RankObservations returns up to limit observations ordered by score, highest
// first. The score is computed by the database.
func RankObservations(db *sql.DB, limit int) ([]*ScoredItem, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = rankLimitDefault
	}

	rows, err := db.Query(selectRankSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute rank query: %w", err)
	}
	defer rows.Close()

	list := make([]*ScoredItem, 0)
	for rows.Next() {
		s := &ScoredItem{}
		if err := rows.Scan(&s.Item, &s.Positives, &s.Negatives, &s.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rank rows: %w", err)
	}

	return list, nil
}

// Query runs a raw SQL query and returns the result as a frame. Text and blob
// cells are returned as strings.
func Query(db *sql.DB, query string, args ...any) (*frame.Frame, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query required", score.ErrInvalidArgument)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	out, err := frame.New(uniqueColumns(cols)...)
	if err != nil {
		return nil, err
	}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		if err := out.Append(vals...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return out, nil
}

// uniqueColumns names unnamed or repeated result columns col_N.
func uniqueColumns(cols []string) []string {
	seen := make(map[string]bool, len(cols))
	out := make([]string, len(cols))
	for i, c := range cols {
		if c == "" || seen[c] {
			c = fmt.Sprintf("col_%d", i+1)
		}
		seen[c] = true
		out[i] = c
	}
	return out
}

func rollbackTransaction(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		slog.Error("failed to rollback transaction", "error", err)
	}
}
