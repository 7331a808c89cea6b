package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mchmarny/wilson/pkg/frame"
	"github.com/mchmarny/wilson/pkg/net"
	"github.com/mchmarny/wilson/pkg/pipeline"
	"github.com/mchmarny/wilson/pkg/score"
	"github.com/mchmarny/wilson/pkg/transform"
	"github.com/urfave/cli/v3"
)

const (
	stdioPath = "-"

	outputFlag      = "output"
	outputColFlag   = "output-col"
	parallelismFlag = "parallelism"
	paramsFlag      = "params"
	saveParamsFlag  = "save-params"
)

func newTransformCmd() *cli.Command {
	flags := []cli.Flag{
		newInputFlag(),
		&cli.StringFlag{
			Name:    outputFlag,
			Aliases: []string{"o"},
			Usage:   "Output CSV file (- for stdout)",
			Value:   stdioPath,
		},
	}
	flags = append(flags, newColumnFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:  outputColFlag,
			Usage: "Column to write scores into (default: from config)",
		},
		newConfidenceFlag(),
		newMethodFlag(),
		&cli.IntFlag{
			Name:  parallelismFlag,
			Usage: "Max concurrent partitions, 0 uses GOMAXPROCS (default: from config)",
		},
		&cli.StringFlag{
			Name:  paramsFlag,
			Usage: "Directory with saved transform parameters to load",
		},
		&cli.StringFlag{
			Name:  saveParamsFlag,
			Usage: "Directory to save the transform parameters into (replaces its metadata.yaml)",
		},
	)

	return &cli.Command{
		Name:    "transform",
		Aliases: []string{"t"},
		Usage:   "Append a Wilson score column to a CSV table",
		UsageText: `wilson transform -i votes.csv --positive-col up --negative-col down --output-col rank
   wilson transform -i votes.csv --params ./params -o scored.csv
   cat votes.csv | wilson transform -i - --positive-col up --negative-col down --output-col rank --save-params ./params`,
		Action: cmdTransform,
		Flags:  flags,
	}
}

func cmdTransform(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	w, err := transformFromFlags(cfg, cmd)
	if err != nil {
		return err
	}
	if err := w.Validate(); err != nil {
		return err
	}

	in, err := readFrame(ctx, cmd.String(inputFlag))
	if err != nil {
		return err
	}

	start := time.Now()
	model, err := pipeline.New().SetStages(w).Fit(ctx, in)
	if err != nil {
		return err
	}
	out, err := model.Transform(ctx, in)
	if err != nil {
		return err
	}
	slog.Debug("transform done", "uid", w.UID(), "rows", out.Len(), "duration", time.Since(start))

	if dir := cmd.String(saveParamsFlag); dir != "" {
		if err := w.Save(dir, true); err != nil {
			return err
		}
		slog.Info("parameters saved", "uid", w.UID(), "dir", dir)
	}

	return writeFrame(cmd.String(outputFlag), out)
}

// transformFromFlags builds the transform from saved params or config, then
// applies the explicitly set flags on top.
func transformFromFlags(cfg *appConfig, cmd *cli.Command) (*transform.WilsonScoreInterval, error) {
	var w *transform.WilsonScoreInterval
	if dir := cmd.String(paramsFlag); dir != "" {
		var err error
		if w, err = transform.Load(dir); err != nil {
			return nil, err
		}
		slog.Debug("parameters loaded", "uid", w.UID(), "dir", dir)
	} else {
		w = cfg.NewTransform()
	}

	if cmd.IsSet(positiveColFlag) {
		w.SetPositiveCol(cmd.String(positiveColFlag))
	}
	if cmd.IsSet(negativeColFlag) {
		w.SetNegativeCol(cmd.String(negativeColFlag))
	}
	if cmd.IsSet(outputColFlag) {
		w.SetOutputCol(cmd.String(outputColFlag))
	}
	if cmd.IsSet(confidenceFlag) {
		w.SetConfidence(cmd.Float(confidenceFlag))
	}
	if cmd.IsSet(methodFlag) {
		w.SetMethod(score.Method(cmd.String(methodFlag)))
	}
	if cmd.IsSet(parallelismFlag) {
		w.SetParallelism(cmd.Int(parallelismFlag))
	}
	return w, nil
}

// readFrame reads CSV from stdin, an http(s) URL or a local file.
func readFrame(ctx context.Context, path string) (*frame.Frame, error) {
	var r io.Reader = stdin
	switch {
	case path == stdioPath:
	case net.IsURL(path):
		body, err := net.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("fetching input %s: %w", path, err)
		}
		defer body.Close()
		r = body
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening input %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	in, err := frame.ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("reading input %s: %w", path, err)
	}
	return in, nil
}

func writeFrame(path string, f *frame.Frame) error {
	if path == stdioPath {
		return f.WriteCSV(stdout)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output %s: %w", path, err)
	}
	if err := f.WriteCSV(file); err != nil {
		file.Close()
		return fmt.Errorf("writing output %s: %w", path, err)
	}
	return file.Close()
}
