package score

import (
	"fmt"
	"math"
	"strings"
)

// Method selects the lower bound formula.
type Method string

const (
	// MethodWilson is the Wilson score interval lower bound:
	//
	//	(p + z²/2n - z·sqrt(p(1-p)/n + z²/4n²)) / (1 + z²/n)
	MethodWilson Method = "wilson"

	// MethodSimplified subtracts the Wilson radius from the raw proportion
	// without the centre correction or the denominator:
	//
	//	p - z·sqrt(p(1-p)/n + z²/4n²)
	//
	// Scores published by earlier versions of the transform were computed
	// this way.
	MethodSimplified Method = "simplified"
)

const (
	// DefaultConfidence is the confidence level used by LowerBound.
	DefaultConfidence = 0.95

	// CompatConfidence is the confidence level of the Compat calculator.
	CompatConfidence = 0.80
)

// Compat reproduces the historical transform scores. It backs the table
// transform and the wilson_score_interval function unless configured otherwise.
var Compat = mustCalculator(CompatConfidence, MethodSimplified)

// Methods lists the supported methods.
var Methods = []Method{MethodWilson, MethodSimplified}

// ParseMethod converts a string to a Method. Empty selects MethodWilson.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodWilson:
		return MethodWilson, nil
	case MethodSimplified:
		return MethodSimplified, nil
	default:
		return "", fmt.Errorf("%w: unknown method %q", ErrInvalidArgument, s)
	}
}

// Calculator scores observation counts at a fixed confidence level.
// It is immutable and safe for concurrent use.
type Calculator struct {
	confidence float64
	method     Method
	z          float64
}

// NewCalculator returns a calculator for the given confidence level in (0,1).
func NewCalculator(confidence float64, method Method) (*Calculator, error) {
	z, err := ZScore(confidence)
	if err != nil {
		return nil, err
	}

	m, err := ParseMethod(string(method))
	if err != nil {
		return nil, err
	}

	return &Calculator{
		confidence: confidence,
		method:     m,
		z:          z,
	}, nil
}

func mustCalculator(confidence float64, method Method) *Calculator {
	c, err := NewCalculator(confidence, method)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Calculator) Confidence() float64 {
	return c.confidence
}

func (c *Calculator) Method() Method {
	return c.method
}

// Z returns the standard normal quantile for the calculator's confidence.
func (c *Calculator) Z() float64 {
	return c.z
}

func (c *Calculator) String() string {
	return fmt.Sprintf("%s(confidence=%g, z=%.6f)", c.method, c.confidence, c.z)
}

// Score returns the lower bound for the given counts, in [0, 1].
// Zero observations score 0.
func (c *Calculator) Score(positives, negatives int64) (float64, error) {
	if positives < 0 || negatives < 0 {
		return 0, fmt.Errorf("%w: counts must be non-negative (positives=%d, negatives=%d)",
			ErrInvalidArgument, positives, negatives)
	}
	if positives > math.MaxInt64-negatives {
		return 0, fmt.Errorf("%w: total overflows (positives=%d, negatives=%d)",
			ErrInvalidArgument, positives, negatives)
	}

	if positives+negatives == 0 {
		return 0, nil
	}

	n := float64(positives + negatives)
	p := float64(positives) / n
	z2 := c.z * c.z
	radius := c.z * math.Sqrt(p*(1-p)/n+z2/(4*n*n))

	var s float64
	switch c.method {
	case MethodSimplified:
		s = p - radius
	default:
		s = (p + z2/(2*n) - radius) / (1 + z2/n)
	}

	return clamp(s), nil
}

// LowerBound returns the Wilson lower bound at the given confidence.
// A confidence of 0 selects DefaultConfidence.
func LowerBound(positives, negatives int64, confidence float64) (float64, error) {
	if confidence == 0 {
		confidence = DefaultConfidence
	}
	c, err := NewCalculator(confidence, MethodWilson)
	if err != nil {
		return 0, err
	}
	return c.Score(positives, negatives)
}

// ZScore returns the standard normal quantile at 1-(1-confidence)/2,
// e.g. 1.959964 for 0.95.
func ZScore(confidence float64) (float64, error) {
	if math.IsNaN(confidence) || confidence <= 0 || confidence >= 1 {
		return 0, fmt.Errorf("%w: confidence must be in (0, 1), got %v", ErrInvalidArgument, confidence)
	}
	return math.Sqrt2 * math.Erfinv(confidence), nil
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
