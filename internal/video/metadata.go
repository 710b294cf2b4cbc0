// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Video metadata related constructs.

package video

import (
	"fmt"
	"strconv"
	"strings"
)

// HDR transfer function tags as reported by ffprobe: PQ and HLG respectively.
const (
	TransferPQ  = "smpte2084"
	TransferHLG = "arib-std-b67"
)

// Metadata type contains useful video stream metadata.
type Metadata struct {
	CodecName     string  `json:"codec_name,omitempty"`
	FrameRate     string  `json:"r_frame_rate,omitempty"`
	Duration      float64 `json:"duration,omitempty,string"`
	Width         int     `json:"width,omitempty"`
	Height        int     `json:"height,omitempty"`
	BitRate       int     `json:"bit_rate,omitempty,string"`
	FrameCount    int     `json:"nb_read_frames,omitempty,string"`
	ColorSpace    string  `json:"color_space,omitempty"`
	ColorTransfer string  `json:"color_transfer,omitempty"`
}

// IsHDR reports if stream carries an HDR transfer function.
func (m *Metadata) IsHDR() bool {
	return m.ColorTransfer == TransferPQ || m.ColorTransfer == TransferHLG
}

// Fps returns frame rate normalized to a 3-decimal fixed precision value.
//
// ffprobe reports r_frame_rate as a rational e.g. "30000/1001", normalization
// makes frame rates comparable across containers that report "25/1" vs "25".
func (m *Metadata) Fps() (float64, error) {
	f, err := ParseFraction(m.FrameRate)
	if err != nil {
		return 0, fmt.Errorf("frame rate %q: %w", m.FrameRate, err)
	}
	// Round to fixed 3-decimal precision.
	return float64(int64(f*1000+0.5)) / 1000, nil
}

// MetadataExtractor is the interface that wraps ExtractMetadata method.
type MetadataExtractor interface {
	ExtractMetadata(videoFile string) (Metadata, error)
}

// ParseFraction parses rational number strings like "30000/1001" or plain
// decimals like "25".
func ParseFraction(s string) (float64, error) {
	num, den, found := strings.Cut(s, "/")
	if !found {
		return strconv.ParseFloat(s, 64)
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("numerator: %w", err)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("denominator: %w", err)
	}
	if d == 0 {
		return 0, fmt.Errorf("zero denominator in %q", s)
	}

	return n / d, nil
}
