// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Converter from xpsnr filter's free-text log to Frame records.

package vqm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Per-line format the xpsnr filter emits, e.g.
//
//	n:      1  XPSNR y: 34.7431  XPSNR u: 41.3339  XPSNR v: 42.4161
var xpsnrLineRe = regexp.MustCompile(
	`^n:\s*(\d+)\s+XPSNR\s+y:\s*(\S+)\s+XPSNR\s+u:\s*(\S+)\s+XPSNR\s+v:\s*(\S+)`)

// Y:U:V channel weights for the composite score, the standard luma-weighted
// perceptual convention.
const (
	weightY     = 6.0
	weightU     = 1.0
	weightV     = 1.0
	weightTotal = weightY + weightU + weightV
)

// ParseXPSNRLog converts xpsnr log lines into Frame records.
//
// The trailing "XPSNR average" summary line is discarded. Lines with an "inf"
// value on any channel signal a degenerate/identical frame and are dropped
// rather than clamped, so resulting frames are renumbered contiguously from 0.
func ParseXPSNRLog(r io.Reader) ([]Frame, error) {
	var frames []Frame
	scanner := bufio.NewScanner(r)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !strings.HasPrefix(line, "n:") {
			// Aggregate summary and any free-form noise.
			continue
		}
		if strings.Contains(line, "inf") {
			continue
		}

		m := xpsnrLineRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("malformed XPSNR log line %d: %q", lineNum, line)
		}

		y, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("XPSNR log line %d y channel: %w", lineNum, err)
		}
		u, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, fmt.Errorf("XPSNR log line %d u channel: %w", lineNum, err)
		}
		v, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return nil, fmt.Errorf("XPSNR log line %d v channel: %w", lineNum, err)
		}

		frames = append(frames, Frame{
			FrameNum: uint(len(frames)),
			Metrics: map[string]float64{
				MetricXPSNR:  (weightY*y + weightU*u + weightV*v) / weightTotal,
				MetricXPSNRY: y,
				MetricXPSNRU: u,
				MetricXPSNRV: v,
			},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading XPSNR log: %w", err)
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("no usable frames in XPSNR log")
	}

	return frames, nil
}

// ParseXPSNRLogFile is file-path convenience wrapper over ParseXPSNRLog.
//
// On parse failure the error is annotated with a capped head of the log to
// help diagnose what the filter actually wrote.
func ParseXPSNRLogFile(logFile string) ([]Frame, error) {
	fd, err := os.Open(logFile)
	if err != nil {
		return nil, fmt.Errorf("opening XPSNR log: %w", err)
	}
	defer fd.Close()

	frames, err := ParseXPSNRLog(fd)
	if err != nil {
		return nil, fmt.Errorf("%w\nlog head:\n%s", err, logHead(logFile, 512))
	}
	return frames, nil
}

// logHead returns at most n leading bytes of file, best effort.
func logHead(path string, n int64) string {
	fd, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer fd.Close()

	b, err := io.ReadAll(io.LimitReader(fd, n))
	if err != nil {
		return ""
	}
	return string(b)
}
