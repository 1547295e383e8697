// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Severity grades a diagnosed condition.
type Severity string

// Known severities.
const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Normalize lowercases and trims the severity so stored variants compare equal.
func (s Severity) Normalize() Severity {
	return Severity(strings.ToLower(strings.TrimSpace(string(s))))
}

// AtLeastModerate reports whether the severity is moderate or severe.
func (s Severity) AtLeastModerate() bool {
	switch s.Normalize() {
	case SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// Condition is a diagnosis attached to a subject.
type Condition struct {
	Name     string   `json:"condition" bson:"condition" yaml:"condition"`
	Severity Severity `json:"severity" bson:"severity" yaml:"severity"`
}

// VitalsRecord is one historical vitals entry. Zero values mean the field was missing.
type VitalsRecord struct {
	HeartRate     int       `json:"heart_rate" yaml:"heart_rate"`
	BloodPressure string    `json:"blood_pressure" yaml:"blood_pressure"`
	Temperature   float64   `json:"temperature" yaml:"temperature"`
	SpO2          float64   `json:"spo2" yaml:"spo2"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
}

// Subject is a monitored patient as read from the profile store.
type Subject struct {
	ID         string         `json:"patient_id" yaml:"patient_id"`
	Name       string         `json:"name" yaml:"name"`
	Active     bool           `json:"is_active" yaml:"is_active"`
	Conditions []Condition    `json:"diagnosed_conditions" yaml:"diagnosed_conditions"`
	History    []VitalsRecord `json:"vitals_history" yaml:"vitals_history"` // oldest -> newest
}

// DisplayName returns the subject name, or "Unknown" when none is stored.
func (s Subject) DisplayName() string {
	if strings.TrimSpace(s.Name) == "" {
		return UnknownName
	}
	return s.Name
}

// RecentHistory returns at most the last n history records.
func (s Subject) RecentHistory(n int) []VitalsRecord {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// UnknownName is published when a subject has no name.
const UnknownName = "Unknown"
