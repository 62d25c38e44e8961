// Package audio provides the playable resource handle, the single reusable
// output handle built on oto/v3, and the PCM/WAV/MP3 plumbing shared by
// capture and playback.
package audio
