// Package relay wraps the relay backend endpoints used by the tutor:
// speech-to-text, reply generation and speech synthesis.
package relay
