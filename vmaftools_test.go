// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Tests for vmaftools subcommands.
package main

import (
	"io"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixVideoFile creates a placeholder file standing in for a video.
func fixVideoFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := path.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("not really a video"), 0o644))
	return p
}

func Test_CompareApp_Parse(t *testing.T) {
	tempDir := t.TempDir()
	refFile := fixVideoFile(t, tempDir, "reference.mp4")
	distFile := fixVideoFile(t, tempDir, "distorted.mp4")

	t.Run("Defaults with two positional arguments", func(t *testing.T) {
		app := CreateCompareCommand().(*CompareApp)
		app.fs.SetOutput(io.Discard)

		gotRef, gotDist, gotPrefix, err := app.Parse([]string{refFile, distFile})
		require.NoError(t, err)

		assert.Equal(t, refFile, gotRef)
		assert.Equal(t, distFile, gotDist)
		assert.Equal(t, defaultReportPrefix, gotPrefix)
		assert.True(t, app.flDenoise, "denoise should default to enabled")
		assert.Equal(t, "standard", app.flProfile)
	})

	t.Run("Custom prefix from third positional argument", func(t *testing.T) {
		app := CreateCompareCommand().(*CompareApp)
		app.fs.SetOutput(io.Discard)

		_, _, gotPrefix, err := app.Parse([]string{refFile, distFile, "my_report"})
		require.NoError(t, err)
		assert.Equal(t, "my_report", gotPrefix)
	})

	t.Run("Denoise can be disabled", func(t *testing.T) {
		app := CreateCompareCommand().(*CompareApp)
		app.fs.SetOutput(io.Discard)

		_, _, _, err := app.Parse([]string{"-denoise=false", refFile, distFile})
		require.NoError(t, err)
		assert.False(t, app.flDenoise)
	})
}

func Test_CompareApp_Parse_Errors(t *testing.T) {
	tempDir := t.TempDir()
	refFile := fixVideoFile(t, tempDir, "reference.mp4")

	tests := map[string]struct {
		givenArgs    []string
		want         string
		wantExitCode int
	}{
		"Wrong flags": {
			givenArgs:    []string{"-zzz", "aaaa"},
			want:         "usage error",
			wantExitCode: 2,
		},
		"Missing positional arguments": {
			givenArgs:    []string{refFile},
			want:         "required arguments",
			wantExitCode: 2,
		},
		"Empty arguments": {
			givenArgs:    []string{},
			want:         "required arguments",
			wantExitCode: 2,
		},
		"Non-existent reference video": {
			givenArgs:    []string{path.Join(tempDir, "missing.mp4"), refFile},
			want:         "reference video file not found",
			wantExitCode: 1,
		},
		"Non-existent distorted video": {
			givenArgs:    []string{refFile, path.Join(tempDir, "missing.mp4")},
			want:         "distorted video file not found",
			wantExitCode: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			app := CreateCompareCommand().(*CompareApp)
			// Discard usage output so that during test execution test output is
			// not flooded with command Usage/Help stuff.
			app.fs.SetOutput(io.Discard)

			_, _, _, err := app.Parse(tc.givenArgs)
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.want)

			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.wantExitCode, appErr.ExitCode())
		})
	}
}

func Test_PlotApp_Parse_Errors(t *testing.T) {
	tests := map[string]struct {
		givenArgs    []string
		want         string
		wantExitCode int
	}{
		"Wrong flags": {
			givenArgs:    []string{"-zzz"},
			want:         "usage error",
			wantExitCode: 2,
		},
		"Missing report argument": {
			givenArgs:    []string{},
			want:         "required argument",
			wantExitCode: 2,
		},
		"Non-existent report file": {
			givenArgs:    []string{"/non/existent/report.json"},
			want:         "not found",
			wantExitCode: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			app := CreatePlotCommand().(*PlotApp)
			app.fs.SetOutput(io.Discard)

			_, err := app.Parse(tc.givenArgs)
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.want)

			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.wantExitCode, appErr.ExitCode())
		})
	}
}

func Test_PlotApp_Run(t *testing.T) {
	tempDir := t.TempDir()
	reportFile := path.Join(tempDir, "report.json")
	report := `{
		"frames": [
			{"frameNum": 0, "metrics": {"vmaf": 92.5, "xpsnr": 36.1}},
			{"frameNum": 1, "metrics": {"vmaf": 93.1, "xpsnr": 36.4}},
			{"frameNum": 2, "metrics": {"vmaf": 91.8, "xpsnr": 35.9}}
		],
		"pooled_metrics": {}
	}`
	require.NoError(t, os.WriteFile(reportFile, []byte(report), 0o644))

	t.Run("Should create plot file for VMAF metric", func(t *testing.T) {
		outFile := path.Join(tempDir, "vmaf.png")
		app := CreatePlotCommand().(*PlotApp)
		app.fs.SetOutput(io.Discard)

		err := app.Run([]string{"-m", "VMAF", "-o", outFile, reportFile})
		require.NoError(t, err)
		assert.FileExists(t, outFile)
	})

	t.Run("Should create multi-panel plot file", func(t *testing.T) {
		outFile := path.Join(tempDir, "xpsnr_multi.png")
		app := CreatePlotCommand().(*PlotApp)
		app.fs.SetOutput(io.Discard)

		err := app.Run([]string{"-m", "xpsnr", "-multi", "-o", outFile, reportFile})
		require.NoError(t, err)
		assert.FileExists(t, outFile)
	})

	t.Run("Should fail for metric missing from report", func(t *testing.T) {
		app := CreatePlotCommand().(*PlotApp)
		app.fs.SetOutput(io.Discard)

		err := app.Run([]string{"-m", "psnr", reportFile})
		assert.ErrorContains(t, err, "no psnr values")
	})
}

func Test_root(t *testing.T) {
	tests := map[string]struct {
		givenArgs    []string
		wantExitCode int
	}{
		"No arguments": {
			givenArgs:    []string{},
			wantExitCode: 2,
		},
		"Unknown command": {
			givenArgs:    []string{"frobnicate"},
			wantExitCode: 2,
		},
		"Help flag": {
			givenArgs:    []string{"-h"},
			wantExitCode: 2,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := root(tc.givenArgs)
			require.Error(t, err)

			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.wantExitCode, appErr.ExitCode())
		})
	}

	t.Run("Version command succeeds", func(t *testing.T) {
		assert.NoError(t, root([]string{"version"}))
	})
}
