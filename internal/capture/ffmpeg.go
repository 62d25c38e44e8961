package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/habla/internal/ttypes"
)

// codecArgs maps each container to the ffmpeg output arguments producing it.
var codecArgs = map[string][]string{
	ttypes.MimeMP4:  {"-c:a", "aac", "-b:a", "64k", "-f", "mp4", "-movflags", "frag_keyframe+empty_moov"},
	ttypes.MimeWebM: {"-c:a", "libopus", "-b:a", "32k", "-f", "webm"},
	ttypes.MimeOgg:  {"-c:a", "libopus", "-b:a", "32k", "-f", "ogg"},
}

// requiredEncoder is the ffmpeg encoder each container needs.
var requiredEncoder = map[string]string{
	ttypes.MimeMP4:  "aac",
	ttypes.MimeWebM: "libopus",
	ttypes.MimeOgg:  "libopus",
}

// FFmpegEncoders creates container recorders backed by an ffmpeg process.
type FFmpegEncoders struct {
	path   string
	rate   int
	logger *log.Logger

	mu       sync.Mutex
	probed   bool
	encoders map[string]bool
}

// NewFFmpegEncoders looks up ffmpeg. A missing binary is not an error;
// every container is then unsupported and capture falls back to WAV.
func NewFFmpegEncoders(sampleRate int, logger *log.Logger) *FFmpegEncoders {
	if logger == nil {
		logger = log.Default().WithPrefix("encoder")
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		logger.Info("ffmpeg not found, recording WAV only")
	}
	return &FFmpegEncoders{path: path, rate: sampleRate, logger: logger}
}

// IsTypeSupported implements EncoderFactory.
func (f *FFmpegEncoders) IsTypeSupported(mime string) bool {
	enc, ok := requiredEncoder[mime]
	if !ok || f.path == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.probed {
		f.encoders = f.probe()
		f.probed = true
	}
	return f.encoders[enc]
}

// Reset forgets probe results so the next check runs ffmpeg again.
func (f *FFmpegEncoders) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = false
	f.encoders = nil
}

func (f *FFmpegEncoders) probe() map[string]bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, f.path, "-hide_banner", "-encoders").Output()
	if err != nil {
		f.logger.Warn("ffmpeg encoder probe failed", "err", err)
		return nil
	}
	return parseEncoders(out)
}

// parseEncoders reads `ffmpeg -encoders` output. Encoder lines start with
// a six-character capability field followed by the encoder name.
func parseEncoders(out []byte) map[string]bool {
	found := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || len(fields[0]) != 6 || fields[0][0] != 'A' {
			continue
		}
		found[fields[1]] = true
	}
	return found
}

// NewRecorder implements EncoderFactory.
func (f *FFmpegEncoders) NewRecorder(mime string) (Recorder, error) {
	args, ok := codecArgs[mime]
	if !ok || !f.IsTypeSupported(mime) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mime)
	}
	return &ContainerRecorder{path: f.path, mime: mime, codec: args, logger: f.logger}, nil
}

// ContainerRecorder pipes float samples into ffmpeg and collects the
// encoded container from its stdout.
type ContainerRecorder struct {
	path   string
	mime   string
	codec  []string
	logger *log.Logger

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      bytes.Buffer
	stderr      bytes.Buffer
	exited      chan struct{}
	waitErr     error
	stopCh      chan struct{}
	consumeDone chan struct{}
	// flush asks consume to write the frames already buffered in the
	// stream before it exits. Set before stopCh is closed.
	flush       bool
}

// Start implements Recorder.
func (r *ContainerRecorder) Start(s Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return fmt.Errorf("container recorder already started")
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "f32le", "-ar", strconv.Itoa(s.SampleRate()), "-ac", "1", "-i", "pipe:0",
	}
	args = append(args, r.codec...)
	args = append(args, "pipe:1")

	cmd := exec.Command(r.path, args...)
	cmd.Stdout = &r.stdout
	cmd.Stderr = &r.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %v", ErrEncoderFailed, err)
	}

	r.cmd = cmd
	r.stdin = stdin
	r.exited = make(chan struct{})
	r.stopCh = make(chan struct{})
	r.consumeDone = make(chan struct{})
	go func() {
		r.waitErr = cmd.Wait()
		close(r.exited)
	}()
	go r.consume(s.Frames(), stdin, r.stopCh, r.consumeDone)
	return nil
}

func (r *ContainerRecorder) consume(frames <-chan []float32, w io.Writer, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 0, 4096)
	write := func(f []float32) bool {
		buf = buf[:0]
		for _, v := range f {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			r.logger.Debug("ffmpeg stdin closed", "err", err)
			return false
		}
		return true
	}
	for {
		select {
		case <-stop:
			if r.flush {
				r.drain(frames, write)
			}
			return
		case f, ok := <-frames:
			if !ok || !write(f) {
				return
			}
		}
	}
}

// drain writes the frames buffered at the time of the call. A live
// device keeps pushing, so it does not wait for the channel to empty.
func (r *ContainerRecorder) drain(frames <-chan []float32, write func([]float32) bool) {
	for n := len(frames); n > 0; n-- {
		select {
		case f, ok := <-frames:
			if !ok || !write(f) {
				return
			}
		default:
			return
		}
	}
}

// Stop implements Recorder. It closes ffmpeg's stdin so the container is
// finalized, then waits for the process.
func (r *ContainerRecorder) Stop(ctx context.Context) (*ttypes.Blob, error) {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil {
		return nil, fmt.Errorf("container recorder not started")
	}

	r.halt(true)
	r.stdin.Close()

	select {
	case <-r.exited:
		if r.waitErr != nil {
			return nil, fmt.Errorf("%w: %v, stderr: %s", ErrEncoderFailed, r.waitErr, r.stderr.String())
		}
	case <-ctx.Done():
		// Try graceful shutdown first
		cmd.Process.Signal(os.Interrupt)
		select {
		case <-r.exited:
		case <-time.After(100 * time.Millisecond):
			cmd.Process.Kill()
			<-r.exited
		}
		return nil, ctx.Err()
	}

	if r.stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: no output, stderr: %s", ErrEncoderFailed, r.stderr.String())
	}
	data := append([]byte(nil), r.stdout.Bytes()...)
	return &ttypes.Blob{Data: data, MimeType: r.mime}, nil
}

// Abort implements Recorder.
func (r *ContainerRecorder) Abort() {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil {
		return
	}
	r.halt(false)
	r.stdin.Close()
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
	<-r.exited
}

func (r *ContainerRecorder) halt(flush bool) {
	r.mu.Lock()
	stopCh, done := r.stopCh, r.consumeDone
	r.stopCh = nil
	if stopCh != nil {
		r.flush = flush
	}
	r.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

// IsWAV implements Recorder.
func (r *ContainerRecorder) IsWAV() bool { return false }

// MimeType implements Recorder.
func (r *ContainerRecorder) MimeType() string { return r.mime }
