// Package rng provides a cryptographically strong random number generator
// for outcome determination, plus the small Source interface the reel
// positioning engine draws from.
// Compliant with GLI-19 Chapter 3: RNG Requirements.
package rng

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// Source is the randomness contract consumed by the positioning engine.
// Intn returns a uniform value in [0, n); implementations must be safe
// for use within a single round. Deterministic implementations are used
// in tests.
type Source interface {
	Intn(n int) int
}

// Service provides cryptographically strong random number generation.
// GLI-19 §3.2: General RNG Requirements.
type Service struct {
	entropy io.Reader
	mu      sync.Mutex

	lastHealthCheck  time.Time
	samplesGenerated int64
}

// New creates a new RNG service using crypto/rand.
func New() *Service {
	return NewWithEntropy(rand.Reader)
}

// NewWithEntropy creates an RNG service over a caller-supplied entropy
// stream. Tests inject a deterministic reader here.
func NewWithEntropy(entropy io.Reader) *Service {
	return &Service{
		entropy:         entropy,
		lastHealthCheck: time.Now(),
	}
}

// GenerateInt returns a random integer in range [0, max).
// Uses rejection sampling to eliminate modulo bias (GLI-19 §3.2.3).
func (s *Service) GenerateInt(max int64) (int64, error) {
	if max <= 0 {
		return 0, fmt.Errorf("max must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := uint64(1<<63-1) - (uint64(1<<63-1) % uint64(max))

	for {
		buf := make([]byte, 8)
		if _, err := io.ReadFull(s.entropy, buf); err != nil {
			return 0, fmt.Errorf("failed to generate random int: %w", err)
		}

		n := binary.BigEndian.Uint64(buf) >> 1

		if n < threshold {
			s.samplesGenerated++
			return int64(n % uint64(max)), nil
		}
		// Reject and retry to avoid modulo bias
	}
}

// GenerateIntRange returns a random integer in range [min, max].
func (s *Service) GenerateIntRange(min, max int64) (int64, error) {
	if min > max {
		return 0, fmt.Errorf("min cannot be greater than max")
	}

	n, err := s.GenerateInt(max - min + 1)
	if err != nil {
		return 0, err
	}
	return min + n, nil
}

// Intn implements Source over the CSPRNG. Entropy exhaustion is not a
// recoverable condition mid-round, so it panics rather than returning a
// half-drawn outcome.
func (s *Service) Intn(n int) int {
	v, err := s.GenerateInt(int64(n))
	if err != nil {
		panic(fmt.Sprintf("rng: entropy source failed: %v", err))
	}
	return int(v)
}

// Pick returns a uniformly chosen index into a collection of length n.
func (s *Service) Pick(n int) (int, error) {
	v, err := s.GenerateInt(int64(n))
	return int(v), err
}

// Shuffle performs a Fisher-Yates shuffle on a slice of float64 values.
// Used by the random-pay selection over paytable rates.
func (s *Service) Shuffle(slice []float64) error {
	for i := len(slice) - 1; i > 0; i-- {
		j, err := s.GenerateInt(int64(i + 1))
		if err != nil {
			return err
		}
		slice[i], slice[j] = slice[j], slice[i]
	}
	return nil
}

// HealthCheck verifies the RNG is functioning correctly.
// GLI-19 §3.3.3: Dynamic Output Monitoring.
func (s *Service) HealthCheck() (*HealthResult, error) {
	s.mu.Lock()
	s.lastHealthCheck = time.Now()
	s.mu.Unlock()

	const sampleSize = 1000
	samples := make([]int64, sampleSize)

	for i := 0; i < sampleSize; i++ {
		n, err := s.GenerateInt(100)
		if err != nil {
			return &HealthResult{
				Healthy:   false,
				Timestamp: time.Now(),
				Error:     err.Error(),
			}, err
		}
		samples[i] = n
	}

	chiSquare, passed := chiSquareTest(samples, 100)

	return &HealthResult{
		Healthy:          passed,
		Timestamp:        time.Now(),
		SamplesGenerated: s.samplesGenerated,
		ChiSquare:        chiSquare,
		ChiSquarePassed:  passed,
	}, nil
}

// chiSquareTest performs a basic chi-square test for uniformity.
// GLI-19 §3.2.2: Statistical Analysis.
func chiSquareTest(samples []int64, bins int) (float64, bool) {
	counts := make([]int, bins)
	for _, sample := range samples {
		counts[int(sample)%bins]++
	}

	expected := float64(len(samples)) / float64(bins)

	var chiSquare float64
	for _, count := range counts {
		diff := float64(count) - expected
		chiSquare += (diff * diff) / expected
	}

	// Critical value for 99 DOF at 99% confidence is approximately 134.6
	criticalValue := 134.6
	if bins != 100 {
		criticalValue = float64(bins-1) + 2.576*math.Sqrt(2.0*float64(bins-1))
	}

	return chiSquare, chiSquare < criticalValue
}

// HealthResult contains RNG health check results.
type HealthResult struct {
	Healthy          bool      `json:"healthy"`
	Timestamp        time.Time `json:"timestamp"`
	SamplesGenerated int64     `json:"samples_generated"`
	ChiSquare        float64   `json:"chi_square"`
	ChiSquarePassed  bool      `json:"chi_square_passed"`
	Error            string    `json:"error,omitempty"`
}
