package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func formatBytes(size int64) string {
	if size <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(size))
}

// formatRatio reports how much smaller the output is than the source.
func formatRatio(original, compressed int64) string {
	if original <= 0 || compressed <= 0 {
		return "-"
	}
	saved := 100 - float64(compressed)*100/float64(original)
	return fmt.Sprintf("%.0f%%", saved)
}

func formatTimestamp(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return humanize.Time(parsed)
}

func formatPercent(percent int) string {
	return fmt.Sprintf("%d%%", percent)
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
