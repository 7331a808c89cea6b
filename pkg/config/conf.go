package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mchmarny/wilson/pkg/score"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600
)

var validate = validator.New()

// Config represents app config object.
type Config struct {
	DBPath      string  `yaml:"db,omitempty"`
	LogLevel    string  `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	Confidence  float64 `yaml:"confidence" validate:"gt=0,lt=1"`
	Method      string  `yaml:"method" validate:"oneof=wilson simplified"`
	Parallelism int     `yaml:"parallelism" validate:"gte=0,lte=1024"`
	Columns     Columns `yaml:"columns"`
}

// Columns are the default transform column names. Empty names must be
// supplied per command.
type Columns struct {
	Positive string `yaml:"positive,omitempty"`
	Negative string `yaml:"negative,omitempty"`
	Output   string `yaml:"output,omitempty"`
}

// Default returns the config written on first use.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		Confidence: score.Compat.Confidence(),
		Method:     string(score.Compat.Method()),
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", score.ErrInvalidArgument, err)
	}
	return nil
}

// Calculator returns the calculator configured by c.
func (c *Config) Calculator() (*score.Calculator, error) {
	if c.Confidence == score.Compat.Confidence() && score.Method(c.Method) == score.Compat.Method() {
		return score.Compat, nil
	}
	return score.NewCalculator(c.Confidence, score.Method(c.Method))
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file: %s: %w", configFileName, err)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir: %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return c, nil
}

// GetOrCreateHomeDir returns the app directory under the user home.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir: %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
