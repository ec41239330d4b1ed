package transcode

import (
	"fmt"
	"path/filepath"
)

// Fixed encoder settings. These bound storage cost per second of video and are
// never taken from user input.
const (
	VideoCodec      = "libx264"
	VideoPreset     = "fast"
	VideoBitrate    = "800k"
	VideoMaxrate    = "1M"
	VideoBufsize    = "1.5M"
	AudioCodec      = "aac"
	AudioBitrate    = "128k"
	SegmentSeconds  = 3
	ManifestName    = "index.m3u8"
	SegmentPattern  = "seg_%03d.ts"
	ManifestExt     = ".m3u8"
	SegmentExt      = ".ts"
	progressPipeArg = "pipe:1"
)

// CropFilter returns the ffmpeg filter removing px rows from the bottom edge,
// or "" when no crop is requested.
func CropFilter(px int) string {
	if px <= 0 {
		return ""
	}
	return fmt.Sprintf("crop=in_w:in_h-%d:0:0", px)
}

// BuildArgs returns the ffmpeg argument list for one encode.
func BuildArgs(sourcePath, outputDir string, cropBottomPx int) []string {
	args := []string{
		"-y", "-hide_banner", "-nostats",
		"-progress", progressPipeArg,
		"-i", sourcePath,
	}
	if filter := CropFilter(cropBottomPx); filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args,
		"-c:v", VideoCodec,
		"-preset", VideoPreset,
		"-b:v", VideoBitrate,
		"-maxrate", VideoMaxrate,
		"-bufsize", VideoBufsize,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", SegmentSeconds),
		"-hls_list_size", "0",
		"-start_number", "0",
		"-hls_segment_filename", filepath.Join(outputDir, SegmentPattern),
		filepath.Join(outputDir, ManifestName),
	)
	return args
}
