package jobconfig

import (
	"bytes"
	"io"
	"os"

	apperrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	autogen "github.com/goliatone/go-autogen"
)

// ParseJobs parses a YAML or JSON job set and validates it.
func ParseJobs(data []byte) (*JobSet, error) {
	var set JobSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// yaml accepts JSON too, a single decode covers both
	if err := dec.Decode(&set); err != nil && err != io.EOF {
		return nil, apperrors.Wrap(err, apperrors.CategoryBadInput, "decode job set").
			WithTextCode(autogen.ErrCodeInvalidConfig)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// LoadJobs reads a job set from r.
func LoadJobs(r io.Reader) (*JobSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryExternal, "read job set").
			WithTextCode(autogen.ErrCodeInvalidConfig)
	}
	return ParseJobs(data)
}

// LoadJobsFile reads a job set from path.
func LoadJobsFile(path string) (*JobSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryExternal, "read job set").
			WithTextCode(autogen.ErrCodeInvalidConfig).
			WithMetadata(map[string]any{"path": path})
	}
	return ParseJobs(data)
}

// Encode renders a job set as YAML.
func Encode(set *JobSet) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(set); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
