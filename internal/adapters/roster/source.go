// Package roster reads the active subjects the simulation generates vitals for.
package roster

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/vitalstream/internal/domain/model"
)

// Source lists active subjects in a stable order.
type Source interface {
	ListActiveSubjects(ctx context.Context) ([]model.Subject, error)
	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}

// StaticSource serves a fixed roster held in memory.
type StaticSource struct {
	subjects []model.Subject
}

// NewStaticSource creates a source over subjects. Only active ones are listed.
func NewStaticSource(subjects ...model.Subject) *StaticSource {
	return &StaticSource{subjects: subjects}
}

type staticFile struct {
	Patients []model.Subject `yaml:"patients"`
}

// LoadStaticFile reads a YAML roster of the form "patients: [...]".
func LoadStaticFile(path string) (*StaticSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var f staticFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	return NewStaticSource(f.Patients...), nil
}

// ListActiveSubjects returns the active subjects in file order.
func (s *StaticSource) ListActiveSubjects(ctx context.Context) ([]model.Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Subject, 0, len(s.subjects))
	for _, subj := range s.subjects {
		if subj.Active {
			out = append(out, subj)
		}
	}
	return out, nil
}

// Ping always succeeds.
func (s *StaticSource) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Layouts accepted for stored history timestamps. Naive timestamps are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTimestamp reads a stored timestamp, returning the zero time when none matches.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
