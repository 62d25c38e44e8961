package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// PCM is decoded signed 16-bit little-endian interleaved audio.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Duration returns the playing time of the samples.
func (p PCM) Duration() time.Duration {
	frame := p.Channels * 2
	if frame == 0 || p.SampleRate == 0 {
		return 0
	}
	frames := len(p.Data) / frame
	return time.Duration(frames) * time.Second / time.Duration(p.SampleRate)
}

// Decode turns an encoded blob into PCM. MP3 and 16-bit PCM WAV are
// recognized from the mime type, falling back to sniffing the header.
func Decode(data []byte, mime string) (PCM, error) {
	if len(data) == 0 {
		return PCM{}, ErrEmptyAudio
	}

	switch {
	case strings.HasPrefix(mime, "audio/wav"), strings.HasPrefix(mime, "audio/x-wav"), isRIFF(data):
		return decodeWAV(data)
	case strings.HasPrefix(mime, "audio/mpeg"), strings.HasPrefix(mime, "audio/mp3"), isMP3(data):
		return decodeMP3(data)
	}
	return PCM{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, mime)
}

func isRIFF(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func decodeWAV(data []byte) (PCM, error) {
	payload, info, err := ParseWAV(data)
	if err != nil {
		return PCM{}, err
	}
	if info.Channels < 1 {
		return PCM{}, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, info.Channels)
	}
	return PCM{Data: payload, SampleRate: info.SampleRate, Channels: info.Channels}, nil
}

func decodeMP3(data []byte) (PCM, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("%w: mp3: %v", ErrUnsupportedFormat, err)
	}
	out, err := io.ReadAll(d)
	if err != nil {
		return PCM{}, fmt.Errorf("decode mp3: %w", err)
	}
	// go-mp3 always emits 16-bit stereo.
	return PCM{Data: out, SampleRate: d.SampleRate(), Channels: 2}, nil
}

// Convert resamples and remixes p to the given format. Resampling is
// linear, which is adequate for speech.
func (p PCM) Convert(sampleRate, channels int) PCM {
	if p.SampleRate == sampleRate && p.Channels == channels {
		return p
	}

	in := toSamples(p.Data)
	frames := len(in) / p.Channels
	if frames == 0 {
		return PCM{SampleRate: sampleRate, Channels: channels}
	}

	outFrames := frames
	if p.SampleRate != sampleRate {
		outFrames = int(int64(frames) * int64(sampleRate) / int64(p.SampleRate))
	}

	out := make([]int16, 0, outFrames*channels)
	step := float64(p.SampleRate) / float64(sampleRate)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= frames {
			next = frames - 1
		}
		for c := 0; c < channels; c++ {
			src := c
			if src >= p.Channels {
				src = p.Channels - 1
			}
			var a, b float64
			if channels == 1 && p.Channels > 1 {
				for k := 0; k < p.Channels; k++ {
					a += float64(in[idx*p.Channels+k])
					b += float64(in[next*p.Channels+k])
				}
				a /= float64(p.Channels)
				b /= float64(p.Channels)
			} else {
				a = float64(in[idx*p.Channels+src])
				b = float64(in[next*p.Channels+src])
			}
			out = append(out, int16(a+(b-a)*frac))
		}
	}

	return PCM{Data: fromSamples(out), SampleRate: sampleRate, Channels: channels}
}

func toSamples(b []byte) []int16 {
	s := make([]int16, len(b)/2)
	for i := range s {
		s[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return s
}

func fromSamples(s []int16) []byte {
	b := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}
