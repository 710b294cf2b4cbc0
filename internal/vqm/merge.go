// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"fmt"

	"github.com/evolution-gaming/vmaftools/internal/logging"
	"github.com/evolution-gaming/vmaftools/internal/metric"
)

// Merge unions XPSNR frames into the VMAF document frame-by-frame.
//
// VMAF and XPSNR metric keys are disjoint so union is order-independent. The
// XPSNR side may be shorter when its log had dropped "inf" frames, trailing
// VMAF frames then keep their VMAF-only metric maps. Pooled statistics for
// the XPSNR keys are computed and added to the document.
func Merge(doc *MetricDocument, xpsnrFrames []Frame) error {
	if len(xpsnrFrames) > len(doc.Frames) {
		return fmt.Errorf("merge: XPSNR side has %d frames, VMAF side only %d",
			len(xpsnrFrames), len(doc.Frames))
	}

	for i := range doc.Frames {
		if i >= len(xpsnrFrames) {
			break
		}
		if doc.Frames[i].Metrics == nil {
			doc.Frames[i].Metrics = make(map[string]float64)
		}
		for k, v := range xpsnrFrames[i].Metrics {
			doc.Frames[i].Metrics[k] = v
		}
	}

	if len(xpsnrFrames) < len(doc.Frames) {
		logging.Infof("XPSNR covers %d of %d frames, remainder is VMAF-only",
			len(xpsnrFrames), len(doc.Frames))
	}

	for _, name := range []string{MetricXPSNR, MetricXPSNRY, MetricXPSNRU, MetricXPSNRV} {
		values := doc.MetricValues(name)
		if len(values) == 0 {
			continue
		}
		agg, err := metric.Aggregate(values)
		if err != nil {
			return fmt.Errorf("merge: pooling %s: %w", name, err)
		}
		doc.PooledMetrics[name] = PooledMetric{
			Min:          agg.Min,
			Max:          agg.Max,
			Mean:         agg.Mean,
			HarmonicMean: agg.HarmonicMean,
		}
	}

	return nil
}
