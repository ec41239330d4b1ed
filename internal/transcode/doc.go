// Package transcode turns a validated source file into an HLS segment set.
//
// The encoder settings are fixed: H.264 at a bounded bitrate with AAC audio,
// cut into 3 second segments behind an index.m3u8 playlist. Callers may only
// choose how many pixels to crop from the bottom edge. A failed or cancelled
// encode never leaves a partial output directory behind.
package transcode
