// Package ttypes contains shared types for the tutor client.
// This package is used to break import cycles between the coordinator,
// relay, capture, and ui packages.
package ttypes

import (
	"time"
)

// Role identifies who authored a conversation message.
type Role string

const (
	// RoleUser is a transcribed learner utterance.
	RoleUser Role = "user"

	// RoleAssistant is a tutor reply.
	RoleAssistant Role = "assistant"
)

// Message is one bubble in the conversation.
type Message struct {
	// ID uniquely identifies the message; audio is cached under it.
	ID string `json:"id"`

	// Role is the author of the message.
	Role Role `json:"role"`

	// Text is the Spanish text shown in the bubble.
	Text string `json:"text"`

	// Translation is the English rendering, revealed on tap.
	Translation string `json:"translation,omitempty"`

	// Correction is the tutor's optional correction of the previous
	// learner utterance.
	Correction string `json:"correction,omitempty"`

	// CreatedAt is when the message was added to the conversation.
	CreatedAt time.Time `json:"created_at"`
}

// Reply is the decoded response of the reply endpoint.
type Reply struct {
	Reply           string  `json:"reply"`
	Correction      *string `json:"correction"`
	NeedsCorrection bool    `json:"needsCorrection"`
	Translation     string  `json:"translation,omitempty"`
}

// CorrectionText returns the correction when one is needed and non-empty.
func (r Reply) CorrectionText() string {
	if !r.NeedsCorrection || r.Correction == nil {
		return ""
	}
	return *r.Correction
}

// SegmentKind distinguishes the spoken parts of a reply.
type SegmentKind string

const (
	// SegmentCorrection is spoken first.
	SegmentCorrection SegmentKind = "correction"

	// SegmentReply is the primary reply.
	SegmentReply SegmentKind = "reply"
)

// Segment is one piece of a reply that needs to be synthesized and played.
type Segment struct {
	MessageID string
	Kind      SegmentKind
	Text      string
}

// AudioKey returns the cache key for the segment's synthesized audio.
func (s Segment) AudioKey() string {
	return AudioKey(s.MessageID, s.Kind)
}

// AudioKey builds the cache key for a message segment.
func AudioKey(messageID string, kind SegmentKind) string {
	return messageID + ":" + string(kind)
}

// Blob is one finalized recording.
type Blob struct {
	// Data holds the encoded audio.
	Data []byte

	// MimeType is the negotiated container/codec, e.g. "audio/mp4".
	MimeType string

	// Samples is the PCM sample count for WAV blobs, zero otherwise.
	Samples int

	// Duration is the wall-clock length of the gesture.
	Duration time.Duration
}

// IsWAV reports whether the blob came from the raw PCM path.
func (b *Blob) IsWAV() bool {
	return b != nil && b.MimeType == MimeWAV
}

// Extension returns the filename extension matching the container.
func (b *Blob) Extension() string {
	if b == nil {
		return ".bin"
	}
	return ExtensionFor(b.MimeType)
}

// Recording container mime types, in preference order.
const (
	MimeMP4  = "audio/mp4"
	MimeWebM = "audio/webm;codecs=opus"
	MimeOgg  = "audio/ogg;codecs=opus"
	MimeWAV  = "audio/wav"
	MimeMPEG = "audio/mpeg"
)

// ExtensionFor maps a mime type to the filename extension the relay uses
// to pick a decode path.
func ExtensionFor(mime string) string {
	base := mime
	for i := 0; i < len(mime); i++ {
		if mime[i] == ';' {
			base = mime[:i]
			break
		}
	}
	switch base {
	case "audio/mp4", "video/mp4":
		return ".mp4"
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".bin"
	}
}
