package transcode

import (
	"fmt"
	"strings"
	"sync"
)

const stderrTailBytes = 16 << 10

// EncodeError reports a non-zero ffmpeg exit. Stderr holds the tail of the
// diagnostic stream.
type EncodeError struct {
	ExitCode int
	Stderr   string
}

func (e *EncodeError) Error() string {
	msg := fmt.Sprintf("ffmpeg exited with status %d", e.ExitCode)
	if line := e.LastLine(); line != "" {
		msg += ": " + line
	}
	return msg
}

// LastLine returns the final non-empty diagnostic line.
func (e *EncodeError) LastLine() string {
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// Diagnostics that no amount of retrying will fix.
var fatalMarkers = []string{
	"no space left on device",
	"invalid data found when processing input",
	"moov atom not found",
	"does not contain any stream",
	"height not divisible by 2",
}

func isFatalDiagnostic(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range fatalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
