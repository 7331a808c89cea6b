package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mchmarny/wilson/pkg/score"
	"github.com/mchmarny/wilson/pkg/udf"

	_ "github.com/lib/pq"
)

const (
	postgresDriver = "postgres"

	// createPostgresFunctionSQL takes the z value and the bound expression.
	createPostgresFunctionSQL = `CREATE OR REPLACE FUNCTION %s(positives bigint, negatives bigint)
RETURNS double precision AS $$
DECLARE
	n double precision;
	p double precision;
	z double precision := %s;
	s double precision;
BEGIN
	IF positives < 0 OR negatives < 0 THEN
		RAISE EXCEPTION 'invalid argument: counts must be non-negative (positives=%%, negatives=%%)', positives, negatives
			USING ERRCODE = '22023';
	END IF;
	n := positives::double precision + negatives::double precision;
	IF n = 0 THEN
		RETURN 0.0;
	END IF;
	p := positives / n;
	s := %s;
	RETURN LEAST(1.0, GREATEST(0.0, s));
END;
$$ LANGUAGE plpgsql IMMUTABLE STRICT PARALLEL SAFE`

	postgresWilsonExpr     = `(p + z*z/(2*n) - z*sqrt(p*(1-p)/n + z*z/(4*n*n))) / (1 + z*z/n)`
	postgresSimplifiedExpr = `p - z*sqrt(p*(1-p)/n + z*z/(4*n*n))`
)

// GetPostgresDB opens and pings a PostgreSQL database.
func GetPostgresDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn not specified")
	}

	db, err := sql.Open(postgresDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	return db, nil
}

// InstallPostgresFunction creates or replaces wilson_score_interval in the
// connected PostgreSQL database with the calculator's z and method.
func InstallPostgresFunction(ctx context.Context, db *sql.DB, calc *score.Calculator) error {
	if db == nil {
		return errDBNotInitialized
	}
	if calc == nil {
		calc = score.Compat
	}

	q := postgresFunctionSQL(calc)
	if _, err := db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("failed to create function %s: %w", udf.WilsonScoreIntervalName, err)
	}

	slog.Debug("postgres function installed", "name", udf.WilsonScoreIntervalName, "calculator", calc.String())
	return nil
}

func postgresFunctionSQL(calc *score.Calculator) string {
	expr := postgresWilsonExpr
	if calc.Method() == score.MethodSimplified {
		expr = postgresSimplifiedExpr
	}
	z := strconv.FormatFloat(calc.Z(), 'g', -1, 64)
	return fmt.Sprintf(createPostgresFunctionSQL, udf.WilsonScoreIntervalName, z, expr)
}
