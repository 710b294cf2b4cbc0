// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Ffmpeg family related tools.
package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path"

	"github.com/evolution-gaming/vmaftools/internal/logging"
	"github.com/evolution-gaming/vmaftools/internal/video"
)

var (
	ffprobeCmd = "ffprobe"
	ffmpegCmd  = "ffmpeg"
	// Specific libvmaf model files to be used when calculating VMAF score. The
	// 4K variant is trained for UHD viewing distances and is picked for >1080p
	// reference material.
	libvmafModel   = "vmaf_v0.6.1.json"
	libvmafModel4K = "vmaf_4k_v0.6.1.json"
	// A list of known locations where various distributions of ffmpeg may put
	// libvmaf models.
	libvmafModelLocations = []string{
		"/usr/local/share/model",
		"/usr/share/model",
		"/opt/ffmpeg-static/model",
	}
)

// FfmpegPath will return path to ffmpeg binary and error if path is not found.
// Can be overridden via VMAFTOOLS_FFMPEG_PATH environment variable.
func FfmpegPath() (string, error) {
	return FindTool(ffmpegCmd, "VMAFTOOLS_FFMPEG_PATH")
}

// FfprobePath will return path to ffprobe binary and error if path is not found.
// Can be overridden via VMAFTOOLS_FFPROBE_PATH environment variable.
func FfprobePath() (string, error) {
	return FindTool(ffprobeCmd, "VMAFTOOLS_FFPROBE_PATH")
}

// FfprobeExtractMetadata will query video file metadata via ffprobe.
func FfprobeExtractMetadata(videoFile string) (video.Metadata, error) {
	var vmeta video.Metadata

	if _, err := os.Stat(videoFile); os.IsNotExist(err) {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() os.Stat: %w", err)
	}

	ffprobeArgs := []string{
		"-v", "quiet",
		"-threads", "0",
		"-select_streams", "v",
		"-count_frames",
		"-of", "json",
		"-show_format",
		"-show_streams",
		videoFile,
	}
	ffprobePath, err := FfprobePath()
	if err != nil {
		return vmeta, err
	}
	cmd := exec.Command(ffprobePath, ffprobeArgs...)
	logging.Debugf("Running: %s\n", cmd)
	out, err := cmd.Output()
	if err != nil {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() exec error: %w", err)
	}

	vmeta, err = ParseFfprobeMetadata(out)
	if err != nil {
		return vmeta, err
	}
	logging.Debugf("%s %+v", videoFile, vmeta)

	return vmeta, nil
}

// ParseFfprobeMetadata unmarshals raw ffprobe JSON output into video.Metadata.
//
// Split out from FfprobeExtractMetadata so that parsing is testable without
// ffprobe binary present.
func ParseFfprobeMetadata(out []byte) (video.Metadata, error) {
	var vmeta video.Metadata

	// A temporary structure to unmarshal JSON from ffprobe output.
	type metadata struct {
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
	// Unmarshal metadata from both "streams" and "format" JSON objects.
	meta := &struct {
		Streams []metadata
		Format  metadata
	}{}
	if err := json.Unmarshal(out, &meta); err != nil {
		return vmeta, fmt.Errorf("ParseFfprobeMetadata() json.Unmarshal: %w", err)
	}
	if len(meta.Streams) == 0 {
		return vmeta, fmt.Errorf("ParseFfprobeMetadata() no video streams found")
	}

	vmeta = video.Metadata(meta.Streams[0])
	// For mkv container Streams does not contain duration, so we have to look into Format.
	vmeta.Duration = math.Max(vmeta.Duration, meta.Format.Duration)

	return vmeta, nil
}

// FindLibvmafModel will return path to the standard HD libvmaf model file.
func FindLibvmafModel() (string, error) {
	return findModel(libvmafModel)
}

// FindLibvmafModel4K will return path to the 4K libvmaf model file.
func FindLibvmafModel4K() (string, error) {
	return findModel(libvmafModel4K)
}

func findModel(model string) (string, error) {
	for _, l := range libvmafModelLocations {
		p := path.Join(l, model)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("libvmaf model file %s not found in any of %s", model, libvmafModelLocations)
}
