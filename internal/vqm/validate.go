// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Sanity validators over merged metric documents.
//
// All checks are heuristics for gross measurement problems - frame
// misalignment, desync between passes, wildly implausible scores. Hard
// failures are returned as errors, borderline findings as warning strings
// the caller is expected to log.

package vqm

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// Pooled VMAF below these floors signals gross frame-misalignment.
	vmafMeanFloor = 10.0
	vmafMaxFloor  = 20.0
	// Minimal share of frames that must carry an XPSNR value.
	xpsnrCoverageMin = 0.9
	// Plausible band for XPSNR Y-channel values.
	xpsnrYMin = 25.0
	xpsnrYMax = 60.0
	// Tolerated share of out-of-band values and of frame number gaps.
	tolerance = 0.1
	// ffmpeg represents infinity in JSON output as max double.
	maxDouble = math.MaxFloat64
)

// ValidateScores fails on implausibly low pooled VMAF.
func ValidateScores(doc *MetricDocument) error {
	pooled, ok := doc.PooledMetrics[MetricVMAF]
	if !ok {
		return fmt.Errorf("document has no pooled %s metric", MetricVMAF)
	}

	if pooled.Mean < vmafMeanFloor || pooled.Max < vmafMaxFloor {
		return fmt.Errorf(
			"suspicious VMAF scores (mean: %.2f, max: %.2f), frames likely misaligned",
			pooled.Mean, pooled.Max)
	}
	return nil
}

// ValidateXPSNRCoverage checks how much of the document carries XPSNR values.
//
// Insufficient coverage is an error, implausible Y-channel values within the
// covered part only produce warnings.
func ValidateXPSNRCoverage(doc *MetricDocument) ([]string, error) {
	var warnings []string
	total := len(doc.Frames)
	if total == 0 {
		return nil, fmt.Errorf("document has no frames")
	}

	covered := 0
	outOfBand := 0
	for i := range doc.Frames {
		if _, ok := doc.Frames[i].Metrics[MetricXPSNR]; !ok {
			continue
		}
		covered++
		if y, ok := doc.Frames[i].Metrics[MetricXPSNRY]; ok {
			if y < xpsnrYMin || y > xpsnrYMax {
				outOfBand++
			}
		}
	}

	if float64(covered) < xpsnrCoverageMin*float64(total) {
		return warnings, fmt.Errorf(
			"XPSNR covers only %d of %d frames, expected at least %.0f%%",
			covered, total, xpsnrCoverageMin*100)
	}
	if float64(outOfBand) > tolerance*float64(total) {
		warnings = append(warnings, fmt.Sprintf(
			"%d of %d XPSNR Y values outside plausible [%.0f, %.0f] dB band",
			outOfBand, total, xpsnrYMin, xpsnrYMax))
	}

	return warnings, nil
}

// ValidateFrameSync walks frame numbers in order and counts non-unit gaps.
func ValidateFrameSync(doc *MetricDocument) error {
	total := len(doc.Frames)
	if total == 0 {
		return fmt.Errorf("document has no frames")
	}

	gaps := 0
	for i := 1; i < total; i++ {
		if doc.Frames[i].FrameNum != doc.Frames[i-1].FrameNum+1 {
			gaps++
		}
	}

	if float64(gaps) > tolerance*float64(total) {
		return fmt.Errorf("%d frame number gaps in %d frames, passes are out of sync", gaps, total)
	}
	return nil
}

// Band is an inclusive expected value range for one metric.
type Band struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (b Band) contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Profile holds expected metric bands for one content type.
type Profile struct {
	VMAF  Band `yaml:"vmaf"`
	XPSNR Band `yaml:"xpsnr"`
}

// DefaultProfiles are built-in expected bands per content type.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"standard": {
			VMAF:  Band{Min: 70, Max: 100},
			XPSNR: Band{Min: 30, Max: 55},
		},
		"film": {
			VMAF:  Band{Min: 75, Max: 100},
			XPSNR: Band{Min: 32, Max: 55},
		},
		"animation": {
			VMAF:  Band{Min: 80, Max: 100},
			XPSNR: Band{Min: 34, Max: 60},
		},
	}
}

// LoadProfiles returns DefaultProfiles overlaid with profiles from an
// optional YAML file. Profiles from file win on name collision.
func LoadProfiles(path string) (map[string]Profile, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profiles file: %w", err)
	}
	fromFile := make(map[string]Profile)
	if err := yaml.Unmarshal(b, &fromFile); err != nil {
		return nil, fmt.Errorf("parsing profiles file %s: %w", path, err)
	}

	for name, p := range fromFile {
		profiles[name] = p
	}
	return profiles, nil
}

// ValidateMetricRange checks per-frame values against content type bands.
//
// A non-numeric or missing VMAF value is a hard error. Out-of-band share
// above tolerance is an error, any out-of-band value at all is a warning.
func ValidateMetricRange(doc *MetricDocument, profile Profile) ([]string, error) {
	var warnings []string
	total := len(doc.Frames)
	if total == 0 {
		return nil, fmt.Errorf("document has no frames")
	}

	vmafOut := 0
	xpsnrOut := 0
	for i := range doc.Frames {
		f := &doc.Frames[i]
		v, ok := f.Metrics[MetricVMAF]
		if !ok {
			return nil, fmt.Errorf("frame %d has no %s value", f.FrameNum, MetricVMAF)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v == maxDouble {
			return nil, fmt.Errorf("frame %d has non-numeric %s value", f.FrameNum, MetricVMAF)
		}
		if !profile.VMAF.contains(v) {
			vmafOut++
		}

		if x, ok := f.Metrics[MetricXPSNR]; ok {
			if math.IsNaN(x) || math.IsInf(x, 0) || x == maxDouble {
				return nil, fmt.Errorf("frame %d has non-numeric %s value", f.FrameNum, MetricXPSNR)
			}
			if !profile.XPSNR.contains(x) {
				xpsnrOut++
			}
		}
	}

	if float64(vmafOut) > tolerance*float64(total) {
		return warnings, fmt.Errorf(
			"%d of %d frames have VMAF outside [%.0f, %.0f] band",
			vmafOut, total, profile.VMAF.Min, profile.VMAF.Max)
	}
	if float64(xpsnrOut) > tolerance*float64(total) {
		return warnings, fmt.Errorf(
			"%d of %d frames have XPSNR outside [%.0f, %.0f] band",
			xpsnrOut, total, profile.XPSNR.Min, profile.XPSNR.Max)
	}
	if vmafOut > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"%d of %d frames have VMAF outside [%.0f, %.0f] band",
			vmafOut, total, profile.VMAF.Min, profile.VMAF.Max))
	}
	if xpsnrOut > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"%d of %d frames have XPSNR outside [%.0f, %.0f] band",
			xpsnrOut, total, profile.XPSNR.Min, profile.XPSNR.Max))
	}

	return warnings, nil
}
