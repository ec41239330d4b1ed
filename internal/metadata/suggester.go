package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"videopipe/internal/config"
	"videopipe/internal/logging"
)

const (
	// FallbackDescription is used when no suggestion is available.
	FallbackDescription = "تم الرفع بنجاح. بانتظار المراجعة الفنية."
	maxTags             = 5
)

// FallbackTags is the fixed tag set used when no suggestion is available.
var FallbackTags = []string{"معالجة", "سحابة"}

// Suggestion carries the metadata proposed for a video.
type Suggestion struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Suggester proposes metadata for a filename.
type Suggester interface {
	Suggest(ctx context.Context, filename string) (Suggestion, error)
}

const systemPrompt = `أنت محرر محتوى لمنصة فيديو. أجب بكائن JSON فقط بالمفاتيح: "title" و"description" و"tags".`

func userPrompt(filename string) string {
	return fmt.Sprintf(`اقترح بيانات وصفية لفيديو اسم ملفه "%s":
- title: عنوان تقني جذاب باللغة العربية
- description: وصف من جملة واحدة
- tags: خمس وسوم قصيرة`, filename)
}

// Suggest asks the model for metadata describing filename.
func (c *Client) Suggest(ctx context.Context, filename string) (Suggestion, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return Suggestion{}, fmt.Errorf("metadata suggest: filename required")
	}
	content, err := c.CompleteJSON(ctx, systemPrompt, userPrompt(filename))
	if err != nil {
		return Suggestion{}, err
	}
	var suggestion Suggestion
	if err := decodeJSON(content, &suggestion); err != nil {
		return Suggestion{}, fmt.Errorf("metadata suggest: decode: %w", err)
	}
	return normalize(suggestion), nil
}

// Fallback returns the deterministic suggestion for filename.
func Fallback(filename string) Suggestion {
	base := filepath.Base(strings.TrimSpace(filename))
	title := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(title) == "" || title == "." {
		title = base
	}
	return Suggestion{
		Title:       strings.TrimSpace(title),
		Description: FallbackDescription,
		Tags:        append([]string(nil), FallbackTags...),
	}
}

type bestEffort struct {
	inner  Suggester
	logger *slog.Logger
}

// BestEffort wraps s so Suggest never fails. Missing fields fall back to
// Fallback(filename). A nil s always yields the fallback.
func BestEffort(s Suggester, logger *slog.Logger) Suggester {
	return &bestEffort{inner: s, logger: logging.NewComponentLogger(logger, "metadata")}
}

func (b *bestEffort) Suggest(ctx context.Context, filename string) (Suggestion, error) {
	fallback := Fallback(filename)
	if b.inner == nil {
		return fallback, nil
	}
	suggestion, err := b.inner.Suggest(ctx, filename)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, b.logger), "metadata suggestion unavailable; using fallback",
			"metadata_fallback",
			logging.String("filename", filename),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check metadata.api_key and model availability"),
			logging.String(logging.FieldImpact, "video published with placeholder title and tags"),
		)
		return fallback, nil
	}
	suggestion = normalize(suggestion)
	if suggestion.Title == "" {
		suggestion.Title = fallback.Title
	}
	if suggestion.Description == "" {
		suggestion.Description = fallback.Description
	}
	if len(suggestion.Tags) == 0 {
		suggestion.Tags = fallback.Tags
	}
	return suggestion, nil
}

// NewFromConfig builds the suggester described by cfg. Disabled or keyless
// configurations return a BestEffort wrapper that always yields the fallback.
func NewFromConfig(cfg config.Metadata, logger *slog.Logger, opts ...Option) Suggester {
	if !cfg.Enabled || strings.TrimSpace(cfg.APIKey) == "" {
		return BestEffort(nil, logger)
	}
	client := NewClient(Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, opts...)
	return BestEffort(client, logger)
}

func normalize(s Suggestion) Suggestion {
	out := Suggestion{
		Title:       strings.TrimSpace(s.Title),
		Description: strings.TrimSpace(s.Description),
	}
	seen := make(map[string]struct{}, len(s.Tags))
	for _, tag := range s.Tags {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out.Tags = append(out.Tags, tag)
		if len(out.Tags) == maxTags {
			break
		}
	}
	return out
}
