// Package playback implements the single-consumer playback queue that owns
// the reusable audio output handle and decides when something is audible.
package playback
