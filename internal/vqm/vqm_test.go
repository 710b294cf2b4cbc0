// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixFakeFfmpeg creates a fake ffmpeg script. When resultFile is non-empty the
// script creates it, mimicking a metric filter writing its report.
func fixFakeFfmpeg(t *testing.T, exitCode int, resultFile string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg fixture is a POSIX shell script")
	}

	script := "#!/bin/sh\necho \"fake ffmpeg output\"\n"
	if resultFile != "" {
		script += fmt.Sprintf("echo '{}' > %s\n", resultFile)
	}
	script += fmt.Sprintf("exit %d\n", exitCode)

	exePath := path.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(exePath, []byte(script), 0o755))
	return exePath
}

func fixMetricConfig(ffmpegPath, resultFile string) *FfmpegMetricConfig {
	return &FfmpegMetricConfig{
		Name:           "VMAF",
		FfmpegPath:     ffmpegPath,
		FfmpegTemplate: DefaultFfmpegMetricTemplate,
		FilterGraph:    "[0:v]null[dist];[1:v]null[ref];[dist][ref]libvmaf",
		ResultFile:     resultFile,
	}
}

func Test_FfmpegMetric_Measure(t *testing.T) {
	resultFile := path.Join(t.TempDir(), "vmaf.json")
	ffmpeg := fixFakeFfmpeg(t, 0, resultFile)

	m, err := NewFfmpegMetric(fixMetricConfig(ffmpeg, resultFile), "dist.mp4", "ref.mp4")
	require.NoError(t, err)

	t.Run("Measure succeeds and result file exists", func(t *testing.T) {
		require.NoError(t, m.Measure())
		assert.FileExists(t, resultFile)
	})

	t.Run("Tool output is captured", func(t *testing.T) {
		assert.Contains(t, string(m.Output()), "fake ffmpeg output")
	})

	t.Run("Second Measure call fails", func(t *testing.T) {
		assert.ErrorContains(t, m.Measure(), "already executed")
	})
}

func Test_FfmpegMetric_Measure_Negative(t *testing.T) {
	t.Run("Non-zero tool exit is fatal", func(t *testing.T) {
		resultFile := path.Join(t.TempDir(), "vmaf.json")
		ffmpeg := fixFakeFfmpeg(t, 1, resultFile)

		m, err := NewFfmpegMetric(fixMetricConfig(ffmpeg, resultFile), "dist.mp4", "ref.mp4")
		require.NoError(t, err)

		assert.ErrorContains(t, m.Measure(), "VMAF calculation error")
	})

	t.Run("Missing result file is fatal", func(t *testing.T) {
		resultFile := path.Join(t.TempDir(), "vmaf.json")
		// Tool exits 0 but never writes the result file.
		ffmpeg := fixFakeFfmpeg(t, 0, "")

		m, err := NewFfmpegMetric(fixMetricConfig(ffmpeg, resultFile), "dist.mp4", "ref.mp4")
		require.NoError(t, err)

		assert.ErrorContains(t, m.Measure(), "produced no result file")
	})
}

func Test_NewFfmpegMetric_Negative(t *testing.T) {
	t.Run("Invalid command template", func(t *testing.T) {
		cfg := fixMetricConfig("ffmpeg", "vmaf.json")
		cfg.FfmpegTemplate = "{{.Unclosed"

		_, err := NewFfmpegMetric(cfg, "dist.mp4", "ref.mp4")
		assert.ErrorContains(t, err, "parse template")
	})

	t.Run("Unbalanced quoting in template", func(t *testing.T) {
		cfg := fixMetricConfig("ffmpeg", "vmaf.json")
		cfg.FfmpegTemplate = `-i "{{.DistortedFile}}`

		_, err := NewFfmpegMetric(cfg, "dist.mp4", "ref.mp4")
		assert.ErrorContains(t, err, "prepare command")
	})
}

func Test_DefaultNThreads(t *testing.T) {
	got := DefaultNThreads()
	assert.Greater(t, got, 0)
	assert.LessOrEqual(t, got, 32)
}
