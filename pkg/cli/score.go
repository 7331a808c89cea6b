package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mchmarny/wilson/pkg/score"
	"github.com/urfave/cli/v3"
)

const (
	positivesFlag = "positives"
	negativesFlag = "negatives"
)

func newScoreCmd() *cli.Command {
	return &cli.Command{
		Name:      "score",
		Usage:     "Score a single pair of positive and negative counts",
		UsageText: "wilson score --positives 20 --negatives 10 [--confidence 0.95 --method wilson]",
		Action:    cmdScore,
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     positivesFlag,
				Usage:    "Number of positive observations",
				Required: true,
			},
			&cli.Int64Flag{
				Name:     negativesFlag,
				Usage:    "Number of negative observations",
				Required: true,
			},
			newConfidenceFlag(),
			newMethodFlag(),
		},
	}
}

// ScoreResult is the output of a single score evaluation.
type ScoreResult struct {
	Positives  int64        `json:"positives" yaml:"positives"`
	Negatives  int64        `json:"negatives" yaml:"negatives"`
	Score      float64      `json:"score" yaml:"score"`
	Confidence float64      `json:"confidence" yaml:"confidence"`
	Method     score.Method `json:"method" yaml:"method"`
}

func methodNames() string {
	list := make([]string, len(score.Methods))
	for i, m := range score.Methods {
		list[i] = string(m)
	}
	return strings.Join(list, ", ")
}

func cmdScore(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	calc, err := cfg.Calculator(cmd)
	if err != nil {
		return err
	}

	res, err := scorePair(calc, cmd.Int64(positivesFlag), cmd.Int64(negativesFlag))
	if err != nil {
		return err
	}

	slog.Debug("scored", "positives", res.Positives, "negatives", res.Negatives, "score", res.Score)
	return encode(res)
}

func scorePair(calc *score.Calculator, positives, negatives int64) (*ScoreResult, error) {
	s, err := calc.Score(positives, negatives)
	if err != nil {
		return nil, fmt.Errorf("scoring %d/%d: %w", positives, negatives, err)
	}
	return &ScoreResult{
		Positives:  positives,
		Negatives:  negatives,
		Score:      s,
		Confidence: calc.Confidence(),
		Method:     calc.Method(),
	}, nil
}
