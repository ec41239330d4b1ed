// Package ingest is the submission boundary for new videos.
//
// Submit validates a request, sniffs the source container, stages the raw
// file under staging_dir/{jobID}/, resolves the folder label, and records a
// PENDING job that the pipeline can claim. Resubmit turns a failed job back
// into a fresh job id referencing the same source material.
package ingest
