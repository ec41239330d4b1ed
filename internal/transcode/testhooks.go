package transcode

import (
	"context"

	"videopipe/internal/media/ffprobe"
)

// probe is the ffprobe function used by Validate. Tests override it.
var probe = ffprobe.Inspect

// diskFree reports available bytes on the volume holding a directory.
var diskFree = freeBytes

// SetProbeForTests overrides the ffprobe runner during tests.
func SetProbeForTests(fn func(context.Context, string, string) (ffprobe.Result, error)) func() {
	previous := probe
	probe = fn
	return func() {
		probe = previous
	}
}

// SetDiskFreeForTests overrides the free-space lookup during tests.
func SetDiskFreeForTests(fn func(string) (uint64, error)) func() {
	previous := diskFree
	diskFree = fn
	return func() {
		diskFree = previous
	}
}
