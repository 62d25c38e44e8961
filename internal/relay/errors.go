package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrUndecodable means the relay could not decode the uploaded
	// container. It drives the switch to WAV recording.
	ErrUndecodable = errors.New("audio could not be decoded")

	// ErrEmptyAudio means the synthesis endpoint returned no bytes.
	ErrEmptyAudio = errors.New("empty synthesized audio")

	// ErrEmptyText means there was nothing to synthesize.
	ErrEmptyText = errors.New("empty text")
)

// StatusError is a non-2xx response. Body is kept for diagnostics only.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.Code, e.Body)
}
