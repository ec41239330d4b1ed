package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrFatal         = errors.New("fatal failure")
	ErrCanceled      = errors.New("canceled")
)

// Kind is the retry classification of a pipeline failure.
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindTransient  Kind = "transient"
	KindFatal      Kind = "fatal"
	KindCanceled   Kind = "canceled"
)

// Wrap builds an error message that includes phase context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its retry class. Cancellation wins over every
// other marker, then validation, then fatal. Anything unrecognised is
// transient so it gets another attempt.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrFatal), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return KindFatal
	default:
		return KindTransient
	}
}

// Retryable reports whether another attempt of the same phase may succeed.
func Retryable(err error) bool {
	return Classify(err) == KindTransient
}

// Summary renders err as a single-line string of at most limit runes,
// suitable for user-visible status fields.
func Summary(err error, limit int) string {
	if err == nil {
		return ""
	}
	return Shorten(err.Error(), limit)
}

// Shorten collapses whitespace in text and truncates it to limit runes.
func Shorten(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

var absPathPattern = regexp.MustCompile(`(^|[\s"'(=\[])(/[^\s:"')\],]+)`)

// ScrubPaths hides local filesystem layout in user-visible text. Each
// old/new pair in aliases is replaced first; any remaining absolute path is
// cut down to its base name.
func ScrubPaths(text string, aliases ...string) string {
	pairs := make([]string, 0, len(aliases))
	for i := 0; i+1 < len(aliases); i += 2 {
		if strings.TrimSpace(aliases[i]) == "" {
			continue
		}
		pairs = append(pairs, aliases[i], aliases[i+1])
	}
	if len(pairs) > 0 {
		text = strings.NewReplacer(pairs...).Replace(text)
	}
	return absPathPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := absPathPattern.FindStringSubmatch(match)
		return sub[1] + filepath.Base(sub[2])
	})
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
