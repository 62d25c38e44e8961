package audio

import (
	"errors"
	"testing"
	"time"
)

func TestDecode_WAV(t *testing.T) {
	blob := EncodeWAV(make([]int16, 16000), 16000)

	pcm, err := Decode(blob, "audio/wav")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if pcm.SampleRate != 16000 || pcm.Channels != 1 {
		t.Errorf("unexpected format %d Hz x%d", pcm.SampleRate, pcm.Channels)
	}
	if pcm.Duration() != time.Second {
		t.Errorf("Duration() = %v, want 1s", pcm.Duration())
	}

	// Sniffed without a mime type.
	if _, err := Decode(blob, ""); err != nil {
		t.Errorf("Decode without mime failed: %v", err)
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode(nil, "audio/mpeg"); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
	if _, err := Decode([]byte("not audio"), "text/plain"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestPCM_Convert(t *testing.T) {
	mono := PCM{Data: fromSamples([]int16{100, 200, 300, 400}), SampleRate: 16000, Channels: 1}

	same := mono.Convert(16000, 1)
	if len(same.Data) != len(mono.Data) {
		t.Error("same-format convert should be a no-op")
	}

	stereo := mono.Convert(16000, 2)
	got := toSamples(stereo.Data)
	if len(got) != 8 || got[0] != 100 || got[1] != 100 || got[6] != 400 {
		t.Errorf("mono to stereo = %v", got)
	}

	up := mono.Convert(32000, 1)
	if frames := len(up.Data) / 2; frames != 8 {
		t.Errorf("upsampled frames = %d, want 8", frames)
	}
	if up.Duration() != mono.Duration() {
		t.Errorf("duration changed: %v vs %v", up.Duration(), mono.Duration())
	}

	down := PCM{Data: fromSamples([]int16{10, 30, 20, 40}), SampleRate: 16000, Channels: 2}.Convert(16000, 1)
	if got := toSamples(down.Data); len(got) != 2 || got[0] != 20 || got[1] != 30 {
		t.Errorf("stereo to mono = %v", got)
	}
}
