// Package sampler generates condition-perturbed vitals samples around a baseline.
package sampler

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/okian/vitalstream/internal/domain/model"
)

// Condition perturbation constants.
const (
	hypertensionSystolicMin  = 10
	hypertensionSystolicMax  = 25
	hypertensionDiastolicMin = 5
	hypertensionDiastolicMax = 15

	diabetesHeartRateMax = 10

	respiratorySpO2Floor = 88.0
	respiratorySpO2Drop  = 5.0

	feverTempMin      = 0.5
	feverTempMax      = 2.0
	feverHeartRateMin = 5
	feverHeartRateMax = 20
)

// Option applies a configuration option to the Sampler.
type Option func(*Sampler)

// WithSeed seeds the sampler's random source. Zero keeps the clock-derived seed.
func WithSeed(seed int64) Option {
	return func(s *Sampler) {
		if seed != 0 {
			s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // simulation data, not security sensitive
		}
	}
}

// WithRand injects a random source. The sampler takes ownership of r.
func WithRand(r *rand.Rand) Option {
	return func(s *Sampler) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithClock sets the clock used to stamp samples.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		if now != nil {
			s.now = now
		}
	}
}

// Sampler draws vitals samples. Safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSampler creates a sampler with configuration options.
func NewSampler(opts ...Option) *Sampler {
	s := &Sampler{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // simulation data, not security sensitive
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate draws one sample for subject within b, applies condition effects
// and clamps the result to the physiological limits.
func (s *Sampler) Generate(subject model.Subject, b model.BaselineProfile) model.VitalsSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	heartRate := s.intIn(b.HeartRate)
	systolic := s.intIn(b.Systolic)
	diastolic := s.intIn(b.Diastolic)
	temp := round1(s.floatIn(b.Temperature))
	spo2 := round1(s.floatIn(b.SpO2))

	for _, c := range subject.Conditions {
		name := strings.ToLower(c.Name)
		switch {
		case strings.Contains(name, "hypertension") && c.Severity.AtLeastModerate():
			systolic += s.between(hypertensionSystolicMin, hypertensionSystolicMax)
			diastolic += s.between(hypertensionDiastolicMin, hypertensionDiastolicMax)
		case strings.Contains(name, "diabetes"):
			heartRate += s.between(0, diabetesHeartRateMax)
		case strings.Contains(name, "copd"), strings.Contains(name, "asthma"):
			spo2 = math.Max(respiratorySpO2Floor, spo2-s.rng.Float64()*respiratorySpO2Drop)
		case strings.Contains(name, "fever"), strings.Contains(name, "infection"):
			temp += feverTempMin + s.rng.Float64()*(feverTempMax-feverTempMin)
			heartRate += s.between(feverHeartRateMin, feverHeartRateMax)
		}
	}

	limits := model.HardLimits
	heartRate = limits.HeartRate.ClampInt(heartRate)
	systolic = limits.Systolic.ClampInt(systolic)
	diastolic = limits.Diastolic.ClampInt(diastolic)
	temp = limits.Temperature.Clamp(round1(temp))
	spo2 = limits.SpO2.Clamp(round1(spo2))

	return model.VitalsSample{
		SubjectID:          subject.ID,
		SubjectName:        subject.DisplayName(),
		HeartRate:          heartRate,
		BloodPressure:      model.FormatBloodPressure(systolic, diastolic),
		TemperatureCelsius: temp,
		OxygenSaturation:   spo2,
		Timestamp:          model.FormatTimestamp(s.now()),
	}
}

// between returns a uniform int in [lo, hi].
func (s *Sampler) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.rng.Intn(hi-lo+1)
}

// intIn draws a uniform int from the integer points of r.
func (s *Sampler) intIn(r model.Range) int {
	lo, hi := int(math.Ceil(r.Lo)), int(math.Floor(r.Hi))
	if hi < lo {
		return int(math.Round(r.Hi))
	}
	return s.between(lo, hi)
}

func (s *Sampler) floatIn(r model.Range) float64 {
	if r.Hi <= r.Lo {
		return r.Lo
	}
	return r.Lo + s.rng.Float64()*(r.Hi-r.Lo)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
