// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe against a file and returns a Result whose helpers
// expose the primary video stream, stream counts, duration, size, and
// bitrate. The transcoder uses it to reject malformed sources and crop
// values taller than the frame before any encode starts.
package ffprobe
