// Package baseline derives per-subject expected vital ranges from recent history.
package baseline

import (
	"math"

	"github.com/okian/vitalstream/internal/domain/model"
)

// Default estimator configuration constants.
const (
	defaultWindow = 3

	heartRateSpread = 15
	heartRateFloor  = 50
	heartRateCeil   = 120

	systolicSpread = 10
	systolicFloor  = 90
	systolicCeil   = 160

	diastolicSpread = 8
	diastolicFloor  = 60
	diastolicCeil   = 100

	spo2Below = 3
	spo2Above = 2
	spo2Floor = 88
	spo2Ceil  = 100
)

// Defaults is the profile used for subjects without usable history.
var Defaults = model.BaselineProfile{
	HeartRate:   model.R(60, 100),
	Systolic:    model.R(110, 130),
	Diastolic:   model.R(70, 85),
	Temperature: model.R(36.1, 37.2),
	SpO2:        model.R(95, 99),
}

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithWindow sets how many of the most recent history records are averaged.
func WithWindow(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.window = n
		}
	}
}

// Estimator computes baseline profiles. It is stateless and safe for concurrent use.
type Estimator struct {
	window int
}

// NewEstimator creates an estimator with configuration options.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{window: defaultWindow}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute returns the baseline for subject. It never fails: missing or malformed
// history values are skipped and the defaults stand in for anything not derived.
// Temperature always keeps its default range.
func (e *Estimator) Compute(subject model.Subject) model.BaselineProfile {
	profile := Defaults

	recent := subject.RecentHistory(e.window)
	if len(recent) == 0 {
		return profile
	}

	if avg, ok := average(recent, func(r model.VitalsRecord) (float64, bool) {
		return float64(r.HeartRate), r.HeartRate != 0
	}); ok {
		profile.HeartRate = model.R(
			math.Max(heartRateFloor, math.Trunc(avg-heartRateSpread)),
			math.Min(heartRateCeil, math.Trunc(avg+heartRateSpread)),
		)
	}

	var systolics, diastolics []float64
	for _, r := range recent {
		if r.BloodPressure == "" {
			continue
		}
		sys, dia, err := model.ParseBloodPressure(r.BloodPressure)
		if err != nil {
			continue
		}
		systolics = append(systolics, float64(sys))
		diastolics = append(diastolics, float64(dia))
	}
	if len(systolics) > 0 {
		avgSys, avgDia := mean(systolics), mean(diastolics)
		profile.Systolic = model.R(
			math.Max(systolicFloor, math.Trunc(avgSys-systolicSpread)),
			math.Min(systolicCeil, math.Trunc(avgSys+systolicSpread)),
		)
		profile.Diastolic = model.R(
			math.Max(diastolicFloor, math.Trunc(avgDia-diastolicSpread)),
			math.Min(diastolicCeil, math.Trunc(avgDia+diastolicSpread)),
		)
	}

	if avg, ok := average(recent, func(r model.VitalsRecord) (float64, bool) {
		return r.SpO2, r.SpO2 != 0
	}); ok {
		profile.SpO2 = model.R(math.Max(spo2Floor, avg-spo2Below), math.Min(spo2Ceil, avg+spo2Above))
	}

	return bounded(profile)
}

// bounded keeps every range non-empty and inside the hard limits.
func bounded(p model.BaselineProfile) model.BaselineProfile {
	return model.BaselineProfile{
		HeartRate:   p.HeartRate.Within(model.HardLimits.HeartRate),
		Systolic:    p.Systolic.Within(model.HardLimits.Systolic),
		Diastolic:   p.Diastolic.Within(model.HardLimits.Diastolic),
		Temperature: p.Temperature.Within(model.HardLimits.Temperature),
		SpO2:        p.SpO2.Within(model.HardLimits.SpO2),
	}
}

func average(records []model.VitalsRecord, pick func(model.VitalsRecord) (float64, bool)) (float64, bool) {
	var values []float64
	for _, r := range records {
		if v, ok := pick(r); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	return mean(values), true
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
