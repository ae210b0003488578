// Package queue serializes narration requests onto a single playback engine.
// Requests either interrupt everything (Speak) or wait their turn (Enqueue);
// a dispatcher goroutine starts the next pending request whenever the engine
// goes idle.
package queue
