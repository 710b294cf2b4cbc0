// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tools

import (
	"os"
	"path"
	"testing"

	"github.com/evolution-gaming/vmaftools/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Path(t *testing.T) {
	type testCase struct {
		pathFunc func() (string, error)
		exeName  string
	}

	tests := map[string]testCase{
		"FfprobePath()": {
			pathFunc: FfprobePath,
			exeName:  "ffprobe",
		},
		"FfmpegPath()": {
			pathFunc: FfmpegPath,
			exeName:  "ffmpeg",
		},
	}

	run := func(t *testing.T, tc testCase) {
		// Create a fake binary and put it on PATH
		fakeBinDir := t.TempDir()
		wantPath := path.Join(fakeBinDir, tc.exeName)
		f, err := os.OpenFile(wantPath, os.O_CREATE, 0o755)
		require.NoError(t, err)
		f.Close()
		sysPath := os.Getenv("PATH")
		t.Setenv("PATH", fakeBinDir+":"+sysPath)

		gotPath, err := tc.pathFunc()
		assert.NoError(t, err)

		assert.Equal(t, wantPath, gotPath)
		assert.FileExists(t, gotPath)
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			run(t, tc)
		})
	}
}

func Test_Path_Negative(t *testing.T) {
	type testCase struct {
		pathFunc func() (string, error)
	}

	tests := map[string]testCase{
		"FfprobePath()": {
			pathFunc: FfprobePath,
		},
		"FfmpegPath()": {
			pathFunc: FfmpegPath,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			// Wipe PATH so that no binary can be located.
			t.Setenv("PATH", "")

			s, err := tc.pathFunc()
			assert.Error(t, err, "Expected error since binary is not on PATH")
			assert.Equal(t, "", s, "Expected empty string as path")
		})
	}
}

func Test_ParseFfprobeMetadata(t *testing.T) {
	t.Run("Should parse mp4 style output with stream duration", func(t *testing.T) {
		given := []byte(`{
			"streams": [
				{
					"codec_name": "h264",
					"r_frame_rate": "24/1",
					"duration": "10.000000",
					"width": 1280,
					"height": 720,
					"bit_rate": "86740",
					"nb_read_frames": "240"
				}
			],
			"format": {
				"duration": "10.000000"
			}
		}`)
		want := video.Metadata{
			CodecName:  "h264",
			FrameRate:  "24/1",
			Duration:   10,
			Width:      1280,
			Height:     720,
			BitRate:    86740,
			FrameCount: 240,
		}

		got, err := ParseFfprobeMetadata(given)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("Should take duration from format for mkv style output", func(t *testing.T) {
		// mkv container reports duration only on format level.
		given := []byte(`{
			"streams": [
				{
					"codec_name": "hevc",
					"r_frame_rate": "25/1",
					"width": 3840,
					"height": 2160,
					"nb_read_frames": "500",
					"color_space": "bt2020nc",
					"color_transfer": "smpte2084"
				}
			],
			"format": {
				"duration": "20.000000"
			}
		}`)

		got, err := ParseFfprobeMetadata(given)
		require.NoError(t, err)
		assert.Equal(t, 20.0, got.Duration)
		assert.Equal(t, "smpte2084", got.ColorTransfer)
		assert.True(t, got.IsHDR())
	})
}

func Test_ParseFfprobeMetadata_Negative(t *testing.T) {
	t.Run("Should fail on invalid JSON", func(t *testing.T) {
		_, err := ParseFfprobeMetadata([]byte("not a JSON"))
		assert.Error(t, err)
	})

	t.Run("Should fail when no video streams present", func(t *testing.T) {
		_, err := ParseFfprobeMetadata([]byte(`{"streams": [], "format": {}}`))
		assert.ErrorContains(t, err, "no video streams")
	})
}

func Test_findModel(t *testing.T) {
	// Point model locations at a controlled directory.
	modelDir := t.TempDir()
	modelFile := path.Join(modelDir, libvmafModel)
	require.NoError(t, os.WriteFile(modelFile, []byte("{}"), 0o644))

	savedLocations := libvmafModelLocations
	libvmafModelLocations = []string{modelDir}
	t.Cleanup(func() { libvmafModelLocations = savedLocations })

	t.Run("Should find HD model in known location", func(t *testing.T) {
		got, err := FindLibvmafModel()
		assert.NoError(t, err)
		assert.Equal(t, modelFile, got)
	})

	t.Run("Should fail for missing 4K model", func(t *testing.T) {
		_, err := FindLibvmafModel4K()
		assert.ErrorContains(t, err, libvmafModel4K)
	})
}
