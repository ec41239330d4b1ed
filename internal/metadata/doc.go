// Package metadata suggests a title, description, and tags for an uploaded
// video from its filename.
//
// Client talks to an OpenAI-compatible chat completions endpoint (OpenRouter
// by default) and asks for a JSON answer in Arabic. BestEffort wraps any
// Suggester so callers always get usable metadata: when the model is
// unavailable or returns partial output, a deterministic fallback derived
// from the filename fills the gaps. Suggestions never gate the pipeline.
package metadata
