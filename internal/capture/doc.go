// Package capture owns the microphone for the duration of one push-to-talk
// gesture. It negotiates a recording container, falls back to raw PCM WAV
// when containers keep failing, and guarantees that every acquired stream
// is stopped.
package capture
