// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package filter

import (
	"fmt"

	"github.com/evolution-gaming/vmaftools/internal/video"
)

// Model variants selectable for libvmaf scoring.
const (
	ModelHD = "hd"
	Model4K = "4k"
)

// Heights above this threshold are scored with the 4K libvmaf model.
const hdHeightLimit = 1080

// Tonemapping transform for HDR sources: convert to linear light, apply Hable
// tonemap operator and re-quantize to BT.709.
var tonemapFilters = []Filter{
	{Name: "zscale", Args: "t=linear:npl=100"},
	{Name: "tonemap", Args: "tonemap=hable"},
	{Name: "zscale", Args: "t=bt709:m=bt709:r=tv"},
	{Name: "format", Args: "yuv420p"},
}

// Spatio-temporal denoise applied to the reference stream so that film grain
// does not dominate the comparison.
var denoiseFilter = Filter{Name: "hqdn3d", Args: "4:3:6:4"}

// Params collects inputs for filter graph construction.
type Params struct {
	Reference video.Metadata
	Distorted video.Metadata
	// Apply denoise filter to the reference chain.
	Denoise bool
	// libvmaf options.
	ModelPath  string
	NThreads   int
	NSubsample int
	// Result file paths passed to the metric filters.
	VMAFLogPath  string
	XPSNRLogPath string
}

// SelectModel returns libvmaf model variant matching reference video height.
func SelectModel(refHeight int) string {
	if refHeight > hdHeightLimit {
		return Model4K
	}
	return ModelHD
}

// VMAFGraph builds the filter graph for the libvmaf measuring pass.
//
// Stream 0 is the distorted video, stream 1 the reference, matching libvmaf's
// expected input order.
func VMAFGraph(p Params) (*Graph, error) {
	dist, ref, err := baseChains(p)
	if err != nil {
		return nil, err
	}

	// Both streams are tonemapped to SDR before libvmaf since the VMAF model
	// is trained on SDR signals.
	if p.Reference.IsHDR() {
		ref.Prepend(tonemapFilters...)
	}
	if p.Distorted.IsHDR() {
		dist.Prepend(tonemapFilters...)
	}

	if p.Denoise {
		ref.Append(denoiseFilter)
	}

	g := &Graph{
		Chains: []Chain{dist, ref},
		Metric: Filter{
			Name: "libvmaf",
			Args: fmt.Sprintf("model=path=%s:log_fmt=json:log_path=%s:n_threads=%d:n_subsample=%d",
				p.ModelPath, p.VMAFLogPath, p.NThreads, p.NSubsample),
		},
	}
	return g, nil
}

// XPSNRGraph builds the filter graph for the xpsnr measuring pass.
//
// Unlike the VMAF pass HDR input is not tonemapped, xpsnr operates on native
// HDR samples in 10-bit YUV.
func XPSNRGraph(p Params) (*Graph, error) {
	dist, ref, err := baseChains(p)
	if err != nil {
		return nil, err
	}

	if p.Reference.IsHDR() || p.Distorted.IsHDR() {
		tenBit := Filter{Name: "format", Args: "yuv420p10le"}
		dist.Prepend(tenBit)
		ref.Prepend(tenBit)
	}

	if p.Denoise {
		ref.Append(denoiseFilter)
	}

	g := &Graph{
		Chains: []Chain{dist, ref},
		Metric: Filter{
			Name: "xpsnr",
			Args: fmt.Sprintf("stats_file=%s", p.XPSNRLogPath),
		},
	}
	return g, nil
}

// baseChains constructs distorted and reference chains with geometry
// reconciliation applied.
func baseChains(p Params) (dist, ref Chain, err error) {
	dist = Chain{Input: "0:v", Output: "dist"}
	ref = Chain{Input: "1:v", Output: "ref"}

	refW, refH := p.Reference.Width, p.Reference.Height
	distW, distH := p.Distorted.Width, p.Distorted.Height

	switch {
	case distH > refH:
		// Distorted is assumed to never exceed reference in resolution.
		return dist, ref, fmt.Errorf(
			"wrong order: distorted height %d exceeds reference height %d, check argument order",
			distH, refH)
	case distW == refW && distH < refH:
		// Letterboxed distorted variant: crop reference vertically, centered.
		ref.Append(Filter{
			Name: "crop",
			Args: fmt.Sprintf("%d:%d:0:%d", distW, distH, (refH-distH)/2),
		})
	default:
		// Differing widths are left to the metric filter's implicit scaling.
	}

	return dist, ref, nil
}
