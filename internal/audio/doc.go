// Package audio provides the output side of narration: sample conversions,
// the Sink abstraction the playback engine writes blocks to, an oto/v3
// device sink and an in-memory sink for tests and headless runs.
package audio
