package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE PCM header.
const WAVHeaderSize = 44

// ErrInvalidWAV is returned when a buffer is not a PCM WAV file.
var ErrInvalidWAV = errors.New("invalid WAV data")

// WAVSize returns the exact byte size of a mono 16-bit WAV holding n samples.
func WAVSize(samples int) int {
	return WAVHeaderSize + samples*2
}

// FloatToPCM16 clamps a float sample to [-1, 1] and scales it to int16.
func FloatToPCM16(f float32) int16 {
	if f != f { // NaN
		return 0
	}
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	if f < 0 {
		return int16(f * 0x8000)
	}
	return int16(f * 0x7FFF)
}

// EncodeWAV writes mono 16-bit samples as a canonical WAV file.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, WAVSize(len(samples))))
	_ = WriteWAVHeader(buf, len(samples)*2, sampleRate, 1)
	_ = binary.Write(buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

// WriteWAVHeader writes the 44-byte header for dataSize bytes of 16-bit PCM.
func WriteWAVHeader(w io.Writer, dataSize, sampleRate, channels int) error {
	const (
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}

	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)

	var hdr [WAVHeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+dataSize))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], audioFormat)
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(dataSize))

	_, err := w.Write(hdr[:])
	return err
}

// WAVInfo describes a parsed WAV file.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Format        int
}

// ParseWAV walks the RIFF chunks and returns the PCM payload.
func ParseWAV(data []byte) ([]byte, WAVInfo, error) {
	var info WAVInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, info, ErrInvalidWAV
	}

	pos := 12
	var gotFmt bool
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			if id == "data" {
				// Streams written before the size was known.
				size = len(data) - body
			} else {
				return nil, info, fmt.Errorf("%w: chunk %q overruns buffer", ErrInvalidWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, info, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			info.Format = int(binary.LittleEndian.Uint16(data[body : body+2]))
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, info, fmt.Errorf("%w: data before fmt", ErrInvalidWAV)
			}
			if info.Format != 1 || info.BitsPerSample != 16 {
				return nil, info, fmt.Errorf("%w: format %d/%d bits", ErrUnsupportedFormat, info.Format, info.BitsPerSample)
			}
			return data[body : body+size], info, nil
		}

		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	return nil, info, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
}

// ValidateWAVBlob checks that a mono 16-bit WAV built from n samples has the
// exact expected size.
func ValidateWAVBlob(blob []byte, samples int) error {
	if want := WAVSize(samples); len(blob) != want {
		return fmt.Errorf("wav size %d != %d for %d samples", len(blob), want, samples)
	}
	return nil
}

// RMS returns the root mean square level of 16-bit samples in [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
