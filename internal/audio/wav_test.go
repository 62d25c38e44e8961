package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncodeWAV_Size(t *testing.T) {
	for _, n := range []int{0, 1, 160, 16000} {
		blob := EncodeWAV(make([]int16, n), 16000)
		if len(blob) != WAVSize(n) {
			t.Errorf("EncodeWAV(%d) size = %d, want %d", n, len(blob), 44+2*n)
		}
		if err := ValidateWAVBlob(blob, n); err != nil {
			t.Errorf("ValidateWAVBlob(%d): %v", n, err)
		}
	}
	if err := ValidateWAVBlob(make([]byte, 50), 4); err == nil {
		t.Error("expected size mismatch error")
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	blob := EncodeWAV([]int16{1, -1, 300}, 16000)

	if string(blob[0:4]) != "RIFF" || string(blob[8:12]) != "WAVE" {
		t.Fatalf("bad RIFF header: %q", blob[0:12])
	}
	if got := binary.LittleEndian.Uint32(blob[4:8]); got != uint32(len(blob)-8) {
		t.Errorf("RIFF size = %d, want %d", got, len(blob)-8)
	}
	if got := binary.LittleEndian.Uint16(blob[20:22]); got != 1 {
		t.Errorf("format tag = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(blob[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(blob[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(blob[28:32]); got != 32000 {
		t.Errorf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint32(blob[40:44]); got != 6 {
		t.Errorf("data size = %d, want 6", got)
	}
}

func TestParseWAV_RoundTrip(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768}
	payload, info, err := ParseWAV(EncodeWAV(samples, 16000))
	if err != nil {
		t.Fatalf("ParseWAV failed: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("unexpected info %+v", info)
	}

	want := new(bytes.Buffer)
	_ = binary.Write(want, binary.LittleEndian, samples)
	if !bytes.Equal(payload, want.Bytes()) {
		t.Errorf("payload mismatch")
	}
}

func TestParseWAV_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("OggS0000WAVEfmt ")},
		{"no data chunk", EncodeWAV(nil, 16000)[:36]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseWAV(tt.data); !errors.Is(err, ErrInvalidWAV) {
				t.Errorf("expected ErrInvalidWAV, got %v", err)
			}
		})
	}
}

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2.5, 32767},
		{-7, -32768},
		{0.5, 16383},
	}
	for _, tt := range tests {
		if got := FloatToPCM16(tt.in); got != tt.want {
			t.Errorf("FloatToPCM16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Error("RMS of nothing should be 0")
	}
	if got := RMS([]int16{-32768, -32768}); got != 1 {
		t.Errorf("RMS of full scale = %v, want 1", got)
	}
}
