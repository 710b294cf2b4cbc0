// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Contains implementation of metric measuring passes that use ffmpeg with
// libvmaf and xpsnr filters along with related data structures and interfaces.

package vqm

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"text/template"

	"github.com/evolution-gaming/vmaftools/internal/logging"
	"github.com/evolution-gaming/vmaftools/internal/lw"
	"github.com/google/shlex"
)

// DefaultFfmpegMetricTemplate is the command template shared by the VMAF and
// XPSNR measuring passes, the pass-specific part lives in the filter graph.
var DefaultFfmpegMetricTemplate = "-hide_banner -i {{.DistortedFile}} -i {{.ReferenceFile}} " +
	"-lavfi {{.FilterGraph}} -f null -"

// Explicitly limit captured tool output to protect ourselves from some
// runaway process flooding output.
const outputBufferSize = 5 * 1024 * 1024

// Measurer is the interface that wraps a single metric measuring pass.
type Measurer interface {
	Measure() error
}

// DefaultNThreads returns thread count for metric filters.
//
// Too much CPU threads are also bad. This was an issue on 128 threaded AMD
// EPYC, ffmpeg was deadlocking at some point during VMAF calculations.
func DefaultNThreads() int {
	nThreads := 32
	if runtime.NumCPU() < nThreads {
		nThreads = runtime.NumCPU()
	}
	return nThreads
}

// FfmpegMetricConfig exposes parameters for FfmpegMetric creation.
type FfmpegMetricConfig struct {
	// Metric name, used only for log and error context.
	Name string
	// Path to ffmpeg executable.
	FfmpegPath string
	// Command template, DefaultFfmpegMetricTemplate compatible.
	FfmpegTemplate string
	// Rendered lavfi filter graph for this pass.
	FilterGraph string
	// File the metric filter writes its report to.
	ResultFile string
}

// FfmpegMetric runs a single ffmpeg metric pass and implements Measurer.
type FfmpegMetric struct {
	name          string
	exePath       string
	ffmpegArgs    []string
	referenceFile string
	distortedFile string
	resultFile    string
	output        []byte
	measured      bool
}

// NewFfmpegMetric will initialize a metric measuring pass based on ffmpeg.
func NewFfmpegMetric(cfg *FfmpegMetricConfig, distortedFile, referenceFile string) (*FfmpegMetric, error) {
	// Template requires a struct with exported fields.
	tplContext := struct {
		ReferenceFile string
		DistortedFile string
		FilterGraph   string
	}{
		ReferenceFile: referenceFile,
		DistortedFile: distortedFile,
		FilterGraph:   cfg.FilterGraph,
	}

	var cmd strings.Builder
	tpl, err := template.New("ffmpeg").Parse(cfg.FfmpegTemplate)
	if err != nil {
		return nil, fmt.Errorf("NewFfmpegMetric() parse template: %w", err)
	}
	if err := tpl.Execute(&cmd, tplContext); err != nil {
		return nil, fmt.Errorf("NewFfmpegMetric() execute template: %w", err)
	}
	ffmpegArgs, err := shlex.Split(cmd.String())
	if err != nil {
		return nil, fmt.Errorf("NewFfmpegMetric() prepare command: %w", err)
	}

	m := &FfmpegMetric{
		name:          cfg.Name,
		exePath:       cfg.FfmpegPath,
		ffmpegArgs:    ffmpegArgs,
		referenceFile: referenceFile,
		distortedFile: distortedFile,
		resultFile:    cfg.ResultFile,
		output:        []byte{},
		measured:      false,
	}

	return m, nil
}

// Measure executes the ffmpeg pass. Result ends up in configured result file.
func (f *FfmpegMetric) Measure() error {
	if f.measured {
		return errors.New("Measure() already executed")
	}

	cmd := exec.Command(f.exePath, f.ffmpegArgs...) //#nosec G204
	logging.Debugf("%s pass command: %v", f.name, cmd.Args)

	var buf bytes.Buffer
	capped := lw.LimitWriter(&buf, outputBufferSize)
	cmd.Stdout = capped
	cmd.Stderr = capped

	err := cmd.Run()
	f.output = buf.Bytes()
	if err != nil {
		logging.Infof("%s pass execution failure:\n%s", f.name, cmd.String())
		logging.Infof("%s pass output:\n%s", f.name, f.output)
		return fmt.Errorf("%s calculation error: %w", f.name, err)
	}

	if _, err := os.Stat(f.resultFile); err != nil {
		return fmt.Errorf("%s pass produced no result file: %w", f.name, err)
	}

	f.measured = true
	return nil
}

// Output returns captured tool output, useful for failure diagnostics.
func (f *FfmpegMetric) Output() []byte {
	return f.output
}
