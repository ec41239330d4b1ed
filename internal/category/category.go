// Package category maps submission category ids to the folder labels used in
// published object paths.
//
// Labels are part of every public URL, so the built-in table is additive
// only: ids may be added, but an existing id never changes its label.
package category

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultLabel is used for unknown ids when no other default is configured.
const DefaultLabel = "general"

var builtin = map[string]string{
	"horror_attacks":     "هجمات مرعبة",
	"true_horror":        "رعب حقيقي",
	"animal_horror":      "رعب الحيوانات",
	"dangerous_scenes":   "أخطر المشاهد",
	"terrifying_horrors": "أهوال مرعبة",
	"horror_comedy":      "رعب كوميدي",
	"scary_moments":      "لحظات مرعبة",
	"shock":              "صدمة",
}

// Entry pairs a category id with its folder label.
type Entry struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Resolver is a pure, deterministic id -> label mapping.
type Resolver struct {
	labels       map[string]string
	defaultLabel string
}

// NewResolver builds a resolver over the built-in table. extra may add ids;
// entries that collide with a built-in id are ignored.
func NewResolver(defaultLabel string, extra map[string]string) *Resolver {
	labels := make(map[string]string, len(builtin)+len(extra))
	for id, label := range builtin {
		labels[id] = Sanitize(label)
	}
	for id, label := range extra {
		key := normalizeID(id)
		if key == "" {
			continue
		}
		if _, exists := builtin[key]; exists {
			continue
		}
		if sanitized := Sanitize(label); sanitized != "" {
			labels[key] = sanitized
		}
	}
	fallback := Sanitize(defaultLabel)
	if fallback == "" {
		fallback = DefaultLabel
	}
	return &Resolver{labels: labels, defaultLabel: fallback}
}

// Resolve returns the folder label for id, or the default label when the id
// is unknown.
func (r *Resolver) Resolve(id string) string {
	if r == nil {
		return DefaultLabel
	}
	if label, ok := r.labels[normalizeID(id)]; ok {
		return label
	}
	return r.defaultLabel
}

// Known reports whether id has an explicit mapping.
func (r *Resolver) Known(id string) bool {
	if r == nil {
		return false
	}
	_, ok := r.labels[normalizeID(id)]
	return ok
}

// Entries lists every mapping sorted by id.
func (r *Resolver) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, 0, len(r.labels))
	for id, label := range r.labels {
		out = append(out, Entry{ID: id, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sanitize converts a display name into a path-safe label: NFC normalized,
// whitespace runs collapsed to a single underscore, path separators and
// control characters dropped.
func Sanitize(label string) string {
	label = norm.NFC.String(strings.TrimSpace(label))
	var b strings.Builder
	b.Grow(len(label))
	pendingSpace := false
	for _, r := range label {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
			continue
		case r == '/' || r == '\\' || unicode.IsControl(r):
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	out := b.String()
	if out == "." || out == ".." {
		return ""
	}
	return out
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
