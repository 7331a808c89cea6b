package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchmarny/wilson/pkg/data"
	"github.com/mchmarny/wilson/pkg/udf"
	"github.com/urfave/cli/v3"
)

const (
	queryLimitFlag = "limit"
	querySQLFlag   = "sql"

	queryResultLimitDefault = 100
)

func newQueryCmd() *cli.Command {
	return &cli.Command{
		Name:    "query",
		Aliases: []string{"q"},
		Usage:   "Rank imported items by score or run raw SQL",
		UsageText: `wilson query --limit 10
   wilson query --sql "SELECT item, wilson_score_interval(positives, negatives) AS s FROM observation"`,
		Action: cmdQuery,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  queryLimitFlag,
				Usage: "Limits number of ranked items returned",
				Value: queryResultLimitDefault,
			},
			&cli.StringFlag{
				Name:  querySQLFlag,
				Usage: fmt.Sprintf("Raw SQL to run, %s(positives, negatives) is available", udf.WilsonScoreIntervalName),
			},
		},
	}
}

func newFunctionsCmd() *cli.Command {
	return &cli.Command{
		Name:   "functions",
		Usage:  "List the scalar functions available in SQL",
		Action: cmdFunctions,
	}
}

// FunctionInfo describes a registered scalar function.
type FunctionInfo struct {
	Name          string `json:"name" yaml:"name"`
	NumArgs       int    `json:"args" yaml:"args"`
	Deterministic bool   `json:"deterministic" yaml:"deterministic"`
}

func cmdQuery(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	db, err := cfg.DB()
	if err != nil {
		return err
	}

	if q := cmd.String(querySQLFlag); q != "" {
		slog.Debug("running query", "sql", q)
		f, err := data.Query(db, q)
		if err != nil {
			return err
		}
		return encode(f.Records())
	}

	list, err := data.RankObservations(db, cmd.Int(queryLimitFlag))
	if err != nil {
		return fmt.Errorf("ranking observations: %w", err)
	}
	return encode(list)
}

func cmdFunctions(_ context.Context, cmd *cli.Command) error {
	reg, err := getConfig(cmd).Registry()
	if err != nil {
		return err
	}
	return encode(listFunctions(reg))
}

func listFunctions(r *udf.Registry) []*FunctionInfo {
	fns := r.Functions()
	list := make([]*FunctionInfo, len(fns))
	for i, fn := range fns {
		list[i] = &FunctionInfo{
			Name:          fn.Name,
			NumArgs:       fn.NumArgs,
			Deterministic: fn.Deterministic,
		}
	}
	return list
}
