package transcode

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"videopipe/internal/services"
)

// minFreeBytes is headroom kept free on the work volume beyond the expected
// output size.
const minFreeBytes = 64 << 20

func freeBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// ensureFreeSpace fails with a fatal error when dir cannot hold an encode of
// a source of sourceBytes. Output is bounded-bitrate so the source size is a
// generous upper bound.
func ensureFreeSpace(dir string, sourceBytes int64) error {
	free, err := diskFree(dir)
	if err != nil {
		return services.Wrap(services.ErrTransient, "transcode", "disk check", "statfs work dir", err)
	}
	need := uint64(minFreeBytes)
	if sourceBytes > 0 {
		need += uint64(sourceBytes)
	}
	if free < need {
		return services.Wrap(
			services.ErrFatal,
			"transcode",
			"disk check",
			fmt.Sprintf("insufficient disk space: %s free, %s required", humanize.IBytes(free), humanize.IBytes(need)),
			nil,
		)
	}
	return nil
}
