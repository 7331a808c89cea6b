package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mchmarny/wilson/pkg/data"
	"github.com/mchmarny/wilson/pkg/score"
	"github.com/urfave/cli/v3"
)

const (
	itemColFlag    = "item-col"
	itemColDefault = "item"
)

func newImportCmd() *cli.Command {
	flags := []cli.Flag{
		newInputFlag(),
		&cli.StringFlag{
			Name:  itemColFlag,
			Usage: "Column holding the item identifier",
			Value: itemColDefault,
		},
	}

	return &cli.Command{
		Name:  "import",
		Usage: "Import observation counts from CSV into the local database",
		UsageText: `wilson import -i votes.csv --positive-col up --negative-col down
   wilson import -i votes.csv --item-col id   # column names from config`,
		Action: cmdImport,
		Flags:  append(flags, newColumnFlags()...),
	}
}

// ImportResult summarizes an import.
type ImportResult struct {
	Rows     int              `json:"rows" yaml:"rows"`
	Duration string           `json:"duration" yaml:"duration"`
	State    map[string]int64 `json:"state" yaml:"state"`
}

func cmdImport(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	posCol := flagOr(cmd, positiveColFlag, cfg.Config.Columns.Positive)
	negCol := flagOr(cmd, negativeColFlag, cfg.Config.Columns.Negative)
	if posCol == "" || negCol == "" {
		return fmt.Errorf("%w: --%s and --%s required", score.ErrConfigurationMissing, positiveColFlag, negativeColFlag)
	}

	in, err := readFrame(ctx, cmd.String(inputFlag))
	if err != nil {
		return err
	}

	db, err := cfg.DB()
	if err != nil {
		return err
	}

	start := time.Now()
	n, err := data.SaveObservations(db, in, cmd.String(itemColFlag), posCol, negCol)
	if err != nil {
		return fmt.Errorf("importing observations: %w", err)
	}

	state, err := data.GetDataState(db)
	if err != nil {
		return fmt.Errorf("getting data state: %w", err)
	}

	res := &ImportResult{
		Rows:     n,
		Duration: time.Since(start).String(),
		State:    state,
	}
	slog.Info("import done", "rows", n, "db", cfg.DBPath)
	return encode(res)
}

func flagOr(cmd *cli.Command, name, def string) string {
	if cmd.IsSet(name) {
		return cmd.String(name)
	}
	return def
}
