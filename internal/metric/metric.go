// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Centralised store of pooled video quality metrics.

package metric

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrMetricNotFound = errors.New("metric not found")

// Metric contains pooled statistics for a single named metric.
type Metric struct {
	Min          float64
	Max          float64
	Mean         float64
	HarmonicMean float64
	StDev        float64
	Variance     float64
}

// Aggregate computes pooled statistics over per-frame metric values.
func Aggregate(values []float64) (Metric, error) {
	var m Metric
	if len(values) == 0 {
		return m, errors.New("Aggregate() no values to aggregate")
	}

	m.Min = floats.Min(values)
	m.Max = floats.Max(values)
	m.HarmonicMean = stat.HarmonicMean(values, nil)
	m.Variance = stat.Variance(values, nil)
	m.Mean, m.StDev = stat.MeanStdDev(values, nil)

	return m, nil
}

// Store keeps pooled metrics keyed by metric name.
type Store struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	// Insertion order, so reports come out stable.
	order []string
}

func NewStore() *Store {
	return &Store{
		metrics: make(map[string]Metric),
	}
}

func (s *Store) Insert(name string, m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.metrics[name]; !exists {
		s.order = append(s.order, name)
	}
	s.metrics[name] = m
}

func (s *Store) Get(name string) (Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[name]
	if !ok {
		return m, fmt.Errorf("getting metric %s: %w", name, ErrMetricNotFound)
	}

	return m, nil
}

func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.metrics[name]

	return exists
}

// Names returns metric names in insertion order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}
