// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Metric document structures shared by the whole pipeline.
//
// The document shape follows libvmaf JSON report: pooled statistics plus
// per-frame metric maps. Metrics are kept as maps since libvmaf changes
// metric field names at will between versions and the XPSNR side adds its
// own keys after merge.

package vqm

import (
	"encoding/json"
	"fmt"
	"io"
)

// Canonical metric keys used across the pipeline.
const (
	MetricVMAF   = "vmaf"
	MetricXPSNR  = "xpsnr"
	MetricXPSNRY = "xpsnr_y"
	MetricXPSNRU = "xpsnr_u"
	MetricXPSNRV = "xpsnr_v"
)

// MetricDocument is a full per-run metric report.
type MetricDocument struct {
	Version       string                  `json:"version,omitempty"`
	Frames        []Frame                 `json:"frames"`
	PooledMetrics map[string]PooledMetric `json:"pooled_metrics"`
}

// Frame holds metric values for a single video frame.
type Frame struct {
	FrameNum uint               `json:"frameNum"`
	Metrics  map[string]float64 `json:"metrics"`
}

// PooledMetric is summary statistics over all frames of one metric.
type PooledMetric struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	HarmonicMean float64 `json:"harmonic_mean"`
}

// ParseDocument unmarshals a libvmaf style JSON report.
func ParseDocument(r io.Reader) (*MetricDocument, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ParseDocument() reading: %w", err)
	}

	doc := &MetricDocument{}
	if err := json.Unmarshal(b, doc); err != nil {
		return nil, fmt.Errorf("ParseDocument() unmarshal JSON: %w", err)
	}
	if len(doc.Frames) == 0 {
		return nil, fmt.Errorf("ParseDocument() document has no frames")
	}
	if doc.PooledMetrics == nil {
		doc.PooledMetrics = make(map[string]PooledMetric)
	}

	return doc, nil
}

// WriteJSON writes document as indented JSON.
func (d *MetricDocument) WriteJSON(w io.Writer) error {
	jDoc, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("WriteJSON() marshal: %w", err)
	}

	if _, err := w.Write(jDoc); err != nil {
		return fmt.Errorf("WriteJSON() write to Writer: %w", err)
	}

	return nil
}

// MetricValues collects values of named metric over frames that carry it, in
// frame order.
func (d *MetricDocument) MetricValues(name string) []float64 {
	var values []float64
	for i := range d.Frames {
		if v, ok := d.Frames[i].Metrics[name]; ok {
			values = append(values, v)
		}
	}
	return values
}
