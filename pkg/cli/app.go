package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mchmarny/wilson/pkg/config"
	"github.com/mchmarny/wilson/pkg/data"
	"github.com/mchmarny/wilson/pkg/logging"
	"github.com/mchmarny/wilson/pkg/score"
	"github.com/mchmarny/wilson/pkg/transform"
	"github.com/mchmarny/wilson/pkg/udf"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "wilson"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	outputFormat = formatJSON

	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

// Flag names. Flag values are built per app in newApp.
const (
	debugFlag       = "debug"
	configDirFlag   = "config"
	dbFilePathFlag  = "db"
	formatFlag      = "format"
	logFormatFlag   = "log-format"
	confidenceFlag  = "confidence"
	methodFlag      = "method"
	inputFlag       = "input"
	positiveColFlag = "positive-col"
	negativeColFlag = "negative-col"
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging("info", logging.FormatText)

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Dir    string
	DBPath string
	Debug  bool
	Config *config.Config

	dbOnce sync.Once
	db     *sql.DB
	dbErr  error
}

// DB opens and initializes the database on first use. SQL function calls
// score with the configured calculator.
func (a *appConfig) DB() (*sql.DB, error) {
	a.dbOnce.Do(func() {
		reg, err := a.Registry()
		if err != nil {
			a.dbErr = err
			return
		}
		if err := data.SetRegistry(reg); err != nil {
			a.dbErr = fmt.Errorf("binding functions: %w", err)
			return
		}
		if err := data.Init(a.DBPath); err != nil {
			a.dbErr = fmt.Errorf("initializing database: %w", err)
			return
		}
		a.db, a.dbErr = data.GetDB(a.DBPath)
	})
	return a.db, a.dbErr
}

// Registry returns a function registry scoring with the config calculator.
func (a *appConfig) Registry() (*udf.Registry, error) {
	calc, err := a.Config.Calculator()
	if err != nil {
		return nil, err
	}
	reg := udf.NewRegistry()
	if err := udf.DefineWilsonScore(reg, calc); err != nil {
		return nil, fmt.Errorf("defining functions: %w", err)
	}
	return reg, nil
}

func (a *appConfig) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// Calculator returns the configured calculator with the command overrides.
func (a *appConfig) Calculator(cmd *cli.Command) (*score.Calculator, error) {
	conf := a.Config.Confidence
	method := score.Method(a.Config.Method)
	if cmd.IsSet(confidenceFlag) {
		conf = cmd.Float(confidenceFlag)
	}
	if cmd.IsSet(methodFlag) {
		method = score.Method(cmd.String(methodFlag))
	}
	return score.NewCalculator(conf, method)
}

// NewTransform returns a transform configured from the config file.
func (a *appConfig) NewTransform() *transform.WilsonScoreInterval {
	return transform.New().
		SetPositiveCol(a.Config.Columns.Positive).
		SetNegativeCol(a.Config.Columns.Negative).
		SetOutputCol(a.Config.Columns.Output).
		SetConfidence(a.Config.Confidence).
		SetMethod(score.Method(a.Config.Method)).
		SetParallelism(a.Config.Parallelism)
}

func getConfig(cmd *cli.Command) *appConfig {
	return cmd.Root().Metadata[appConfigKey].(*appConfig)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Wilson score interval scoring for positive/negative observation counts",
		Metadata:              map[string]any{},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  debugFlag,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&cli.StringFlag{
				Name:  configDirFlag,
				Usage: fmt.Sprintf("Path to the config directory (default: $HOME/.%s)", appName),
			},
			&cli.StringFlag{
				Name:  dbFilePathFlag,
				Usage: "Path to the Sqlite database file (default: from config or <config>/data.db)",
			},
			&cli.StringFlag{
				Name:  formatFlag,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
			&cli.StringFlag{
				Name:  logFormatFlag,
				Usage: "Log format [text, json]",
				Value: logging.FormatText,
			},
		},
		Commands: []*cli.Command{
			newScoreCmd(),
			newTransformCmd(),
			newImportCmd(),
			newQueryCmd(),
			newFunctionsCmd(),
			newPostgresCmd(),
			newServerCmd(),
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			dir := cmd.String(configDirFlag)
			if dir == "" {
				var err error
				if dir, _, err = config.GetOrCreateHomeDir(appName); err != nil {
					return ctx, fmt.Errorf("resolving config directory: %w", err)
				}
			}

			cfg, err := config.ReadOrCreate(dir)
			if err != nil {
				return ctx, fmt.Errorf("reading config: %w", err)
			}

			level := cfg.LogLevel
			if cmd.Bool(debugFlag) {
				level = "debug"
			}
			initLogging(level, cmd.String(logFormatFlag))

			outputFormat = formatJSON
			if f := cmd.String(formatFlag); f == formatYAML || f == "yml" {
				outputFormat = formatYAML
			}

			dbPath := cmd.String(dbFilePathFlag)
			if dbPath == "" {
				dbPath = cfg.DBPath
			}
			if dbPath == "" {
				dbPath = filepath.Join(dir, data.DataFileName)
			}

			slog.Debug("config loaded", "dir", dir, "db", dbPath, "confidence", cfg.Confidence, "method", cfg.Method)

			cmd.Metadata[appConfigKey] = &appConfig{
				Dir:    dir,
				DBPath: dbPath,
				Debug:  cmd.Bool(debugFlag),
				Config: cfg,
			}
			return ctx, nil
		},
		After: func(_ context.Context, cmd *cli.Command) error {
			if cfg, ok := cmd.Metadata[appConfigKey].(*appConfig); ok {
				cfg.Close()
			}
			return nil
		},
	}
}

func newConfidenceFlag() cli.Flag {
	return &cli.FloatFlag{
		Name:  confidenceFlag,
		Usage: "Confidence level in (0,1) (default: from config)",
	}
}

func newMethodFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  methodFlag,
		Usage: fmt.Sprintf("Lower bound method [%s] (default: from config)", methodNames()),
	}
}

func newInputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     inputFlag,
		Aliases:  []string{"i"},
		Usage:    "Input CSV file or http(s) URL with a header row (- for stdin)",
		Required: true,
	}
}

func newColumnFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  positiveColFlag,
			Usage: "Column holding positive counts (default: from config)",
		},
		&cli.StringFlag{
			Name:  negativeColFlag,
			Usage: "Column holding negative counts (default: from config)",
		},
	}
}

func initLogging(level, format string) {
	slog.SetDefault(logging.NewLogger(os.Stderr, level, format))
}

func encode(v any) error {
	if outputFormat == formatYAML {
		return yaml.NewEncoder(stdout).Encode(v)
	}
	e := json.NewEncoder(stdout)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
