package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 UTC layout stamped on every sample.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// ErrBloodPressure reports a reading that is not "systolic/diastolic".
var ErrBloodPressure = errors.New("malformed blood pressure")

// Range is a closed interval [Lo, Hi].
type Range struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// R is shorthand for Range{Lo: lo, Hi: hi}.
func R(lo, hi float64) Range { return Range{Lo: lo, Hi: hi} }

// Valid reports whether the range is non-empty.
func (r Range) Valid() bool { return r.Lo <= r.Hi }

// Contains reports whether v lies in the range.
func (r Range) Contains(v float64) bool { return v >= r.Lo && v <= r.Hi }

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 { return math.Max(r.Lo, math.Min(r.Hi, v)) }

// ClampInt limits an integer to the range.
func (r Range) ClampInt(v int) int {
	return int(r.Clamp(float64(v)))
}

// Within intersects r with bounds. An interval that ends up inverted collapses onto its high end.
func (r Range) Within(bounds Range) Range {
	out := Range{Lo: bounds.Clamp(r.Lo), Hi: bounds.Clamp(r.Hi)}
	if out.Lo > out.Hi {
		out.Lo = out.Hi
	}
	return out
}

// BaselineProfile holds the per-subject expected ranges for one simulation run.
type BaselineProfile struct {
	HeartRate   Range `json:"heart_rate_range"`
	Systolic    Range `json:"systolic_range"`
	Diastolic   Range `json:"diastolic_range"`
	Temperature Range `json:"temperature_range"`
	SpO2        Range `json:"spo2_range"`
}

// Valid reports whether every range is non-empty and inside the hard limits.
func (b BaselineProfile) Valid() bool {
	pairs := [][2]Range{
		{b.HeartRate, HardLimits.HeartRate},
		{b.Systolic, HardLimits.Systolic},
		{b.Diastolic, HardLimits.Diastolic},
		{b.Temperature, HardLimits.Temperature},
		{b.SpO2, HardLimits.SpO2},
	}
	for _, p := range pairs {
		r, bound := p[0], p[1]
		if !r.Valid() || !bound.Contains(r.Lo) || !bound.Contains(r.Hi) {
			return false
		}
	}
	return true
}

// HardLimits are the physiological bounds every sample is clamped to.
var HardLimits = BaselineProfile{
	HeartRate:   R(40, 180),
	Systolic:    R(80, 200),
	Diastolic:   R(50, 120),
	Temperature: R(35.0, 42.0),
	SpO2:        R(70.0, 100.0),
}

// VitalsSample is one generated reading. Field names are the ingestion wire contract.
type VitalsSample struct {
	SubjectID          string  `json:"patient_id"`
	SubjectName        string  `json:"patient_name"`
	HeartRate          int     `json:"heart_rate"`
	BloodPressure      string  `json:"blood_pressure"`
	TemperatureCelsius float64 `json:"temperature_celsius"`
	OxygenSaturation   float64 `json:"oxygen_saturation"`
	Timestamp          string  `json:"timestamp"`
}

// Field returns the wire value of the named field as a string.
func (s VitalsSample) Field(name string) (string, bool) {
	switch name {
	case "patient_id":
		return s.SubjectID, true
	case "patient_name":
		return s.SubjectName, true
	case "heart_rate":
		return strconv.Itoa(s.HeartRate), true
	case "blood_pressure":
		return s.BloodPressure, true
	case "temperature_celsius":
		return strconv.FormatFloat(s.TemperatureCelsius, 'f', -1, 64), true
	case "oxygen_saturation":
		return strconv.FormatFloat(s.OxygenSaturation, 'f', -1, 64), true
	case "timestamp":
		return s.Timestamp, true
	}
	return "", false
}

// FormatTimestamp renders t in the sample timestamp layout (UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseBloodPressure splits "S/D" into integers.
func ParseBloodPressure(bp string) (systolic, diastolic int, err error) {
	parts := strings.Split(strings.TrimSpace(bp), "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBloodPressure, bp)
	}
	systolic, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBloodPressure, bp)
	}
	diastolic, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBloodPressure, bp)
	}
	return systolic, diastolic, nil
}

// FormatBloodPressure renders "systolic/diastolic".
func FormatBloodPressure(systolic, diastolic int) string {
	return strconv.Itoa(systolic) + "/" + strconv.Itoa(diastolic)
}
