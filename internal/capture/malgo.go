package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
)

// MalgoMicrophone captures from the default input device through miniaudio.
type MalgoMicrophone struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	logger *log.Logger
}

// NewMalgoMicrophone initializes the audio backend.
func NewMalgoMicrophone(logger *log.Logger) (*MalgoMicrophone, error) {
	if logger == nil {
		logger = log.Default().WithPrefix("mic")
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		logger.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return &MalgoMicrophone{ctx: ctx, logger: logger}, nil
}

// Acquire opens and starts a capture device. Processing hints have no
// miniaudio equivalent and are only logged.
func (m *MalgoMicrophone) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return nil, ErrNoDevice
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultConstraints().SampleRate
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(c.SampleRate)
	cfg.PeriodSizeInMilliseconds = 20

	var device *malgo.Device
	stream := NewChanStream(c.SampleRate, 256, func() {
		if device != nil {
			device.Uninit()
		}
	})

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			stream.Push(bytesToFloat32(in))
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, deviceError(err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, deviceError(err)
	}
	if err := ctx.Err(); err != nil {
		stream.Stop()
		return nil, err
	}

	m.logger.Debug("capture started",
		"rate", c.SampleRate,
		"echo_cancellation", c.EchoCancellation,
		"noise_suppression", c.NoiseSuppression,
		"auto_gain", c.AutoGainControl)
	return stream, nil
}

// Close releases the audio backend.
func (m *MalgoMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	return err
}

// deviceError maps a miniaudio failure onto the capture errors. The OS
// privacy controls (macOS TCC, PipeWire portals) surface as an access
// denied result.
func deviceError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrNoDevice, err)
}

func bytesToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
