package transform

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mchmarny/wilson/pkg/score"
	"gopkg.in/yaml.v3"
)

const (
	metadataFileName = "metadata.yaml"
	dirMode          = 0700
	fileMode         = 0600

	paramPositiveCol = "positiveCol"
	paramNegativeCol = "negativeCol"
	paramOutputCol   = "outputCol"
	paramConfidence  = "confidence"
	paramMethod      = "method"
	paramParallelism = "parallelism"
)

// Version is written into saved metadata.
var Version = "v0.1.0"

// Metadata is the persisted form of a transform. Unknown keys in ParamMap
// are ignored on load.
type Metadata struct {
	Class     string         `yaml:"class"`
	UID       string         `yaml:"uid"`
	Timestamp int64          `yaml:"timestamp"`
	Version   string         `yaml:"version"`
	ParamMap  map[string]any `yaml:"paramMap"`
}

// Save writes the transform parameters into dir, creating it if needed. An
// existing metadata file is only replaced when overwrite is set; nothing
// else in dir is touched.
func (w *WilsonScoreInterval) Save(dir string, overwrite bool) error {
	if dir == "" {
		return errors.New("parameter directory required")
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("failed to create dir: %s: %w", dir, err)
	}

	path := filepath.Join(dir, metadataFileName)
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("path %s already exists, use overwrite to replace it", path)
	}

	params := map[string]any{
		paramConfidence:  w.confidence,
		paramMethod:      string(w.method),
		paramParallelism: w.parallelism,
	}
	for k, v := range map[string]string{
		paramPositiveCol: w.positiveCol,
		paramNegativeCol: w.negativeCol,
		paramOutputCol:   w.outputCol,
	} {
		if v != "" {
			params[k] = v
		}
	}

	m := &Metadata{
		Class:     ClassName,
		UID:       w.uid,
		Timestamp: time.Now().UTC().UnixMilli(),
		Version:   Version,
		ParamMap:  params,
	}

	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write metadata file: %s: %w", path, err)
	}

	slog.Debug("saved transform", "uid", w.uid, "path", path)
	return nil
}

// Load reads a transform saved with Save.
func Load(dir string) (*WilsonScoreInterval, error) {
	if dir == "" {
		return nil, errors.New("parameter directory required")
	}

	path := filepath.Join(dir, metadataFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading metadata file: %s: %w", path, err)
	}

	var m Metadata
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("error unmarshalling metadata file: %s: %w", path, err)
	}

	if m.Class != ClassName {
		return nil, fmt.Errorf("%w: expected class %s, found %q", score.ErrInvalidArgument, ClassName, m.Class)
	}

	w := New()
	if m.UID != "" {
		w.uid = m.UID
	}

	var errs []error
	w.positiveCol = stringParam(m.ParamMap, paramPositiveCol, &errs)
	w.negativeCol = stringParam(m.ParamMap, paramNegativeCol, &errs)
	w.outputCol = stringParam(m.ParamMap, paramOutputCol, &errs)
	if v := stringParam(m.ParamMap, paramMethod, &errs); v != "" {
		w.method = score.Method(v)
	}
	if v, ok := m.ParamMap[paramConfidence]; ok {
		switch c := v.(type) {
		case float64:
			w.confidence = c
		case int:
			w.confidence = float64(c)
		default:
			errs = append(errs, fmt.Errorf("param %s: unexpected type %T", paramConfidence, v))
		}
	}
	if v, ok := m.ParamMap[paramParallelism]; ok {
		p, isInt := v.(int)
		if !isInt {
			errs = append(errs, fmt.Errorf("param %s: unexpected type %T", paramParallelism, v))
		}
		w.parallelism = p
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", score.ErrInvalidArgument, path, err)
	}

	slog.Debug("loaded transform", "uid", w.uid, "version", m.Version, "path", path)
	return w, nil
}

func stringParam(params map[string]any, key string, errs *[]error) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		*errs = append(*errs, fmt.Errorf("param %s: unexpected type %T", key, v))
		return ""
	}
	return s
}
