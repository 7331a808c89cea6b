package score

import "errors"

var (
	// ErrInvalidArgument is returned for negative counts, unusable confidence
	// levels and input columns that are missing or non-numeric.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConfigurationMissing is returned when a required option is not set
	// before use.
	ErrConfigurationMissing = errors.New("configuration missing")
)
