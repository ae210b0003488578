// Package cache stores synthesized paragraphs so repeated narration of the
// same text skips the synthesizer. A Manager combines an in-memory LRU (L1)
// with a zstd-compressed disk store (L2) that survives restarts.
package cache
