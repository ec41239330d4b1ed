package transcode

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// progressTracker converts ffmpeg -progress key=value output into a percent of
// the source duration. Reported values never decrease.
type progressTracker struct {
	durationUS float64
	last       float64
	report     func(float64)
}

func newProgressTracker(durationSeconds float64, report func(float64)) *progressTracker {
	return &progressTracker{durationUS: durationSeconds * 1e6, last: -1, report: report}
}

func (p *progressTracker) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	// Drain so ffmpeg never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

func (p *progressTracker) line(raw string) {
	key, value, ok := strings.Cut(strings.TrimSpace(raw), "=")
	if !ok {
		return
	}
	switch key {
	// out_time_ms is reported in microseconds, same as out_time_us.
	case "out_time_us", "out_time_ms":
		if p.durationUS <= 0 {
			return
		}
		us, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || us < 0 {
			return
		}
		p.emit(us / p.durationUS * 100)
	case "progress":
		if strings.TrimSpace(value) == "end" {
			p.emit(100)
		}
	}
}

func (p *progressTracker) emit(percent float64) {
	if percent > 100 {
		percent = 100
	}
	if percent <= p.last {
		return
	}
	p.last = percent
	if p.report != nil {
		p.report(percent)
	}
}
