package capture

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/habla/internal/audio"
	"github.com/dgnsrekt/habla/internal/ttypes"
)

func TestWAVRecorder_SizeMatchesSamples(t *testing.T) {
	stream := NewChanStream(16000, 16, nil)
	rec := NewWAVRecorder(20 * time.Millisecond)
	if err := rec.Start(stream); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stream.Push(make([]float32, 160))
	stream.Push([]float32{2, -2, 0.5})

	blob, err := rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if blob.MimeType != ttypes.MimeWAV || !blob.IsWAV() {
		t.Errorf("mime = %q", blob.MimeType)
	}
	if blob.Samples != 163 {
		t.Errorf("Samples = %d, want 163", blob.Samples)
	}
	if len(blob.Data) != audio.WAVSize(163) {
		t.Errorf("size = %d, want %d", len(blob.Data), 44+2*163)
	}

	payload, info, err := audio.ParseWAV(blob.Data)
	if err != nil {
		t.Fatalf("ParseWAV failed: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 {
		t.Errorf("unexpected format %+v", info)
	}
	// Clamped samples.
	if got := int16(uint16(payload[320]) | uint16(payload[321])<<8); got != 32767 {
		t.Errorf("clamped sample = %d, want 32767", got)
	}
}

func TestWAVRecorder_DrainWindowCollectsTrailingFrames(t *testing.T) {
	stream := NewChanStream(16000, 16, nil)
	rec := NewWAVRecorder(150 * time.Millisecond)
	rec.Start(stream)

	go func() {
		time.Sleep(30 * time.Millisecond)
		stream.Push(make([]float32, 10))
	}()

	blob, err := rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if blob.Samples != 10 {
		t.Errorf("frames pushed during the drain window were lost: %d", blob.Samples)
	}
}

func TestWAVRecorder_Abort(t *testing.T) {
	stream := NewChanStream(16000, 16, nil)
	rec := NewWAVRecorder(0)
	rec.Start(stream)
	stream.Push(make([]float32, 10))
	rec.Abort()
	rec.Abort()

	if stream.Stopped() {
		t.Error("recorder must not stop the stream itself")
	}
}

func TestParseEncoders(t *testing.T) {
	out := []byte(`Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264
 A....D aac                  AAC (Advanced Audio Coding)
 A....D libopus              libopus Opus
`)
	found := parseEncoders(out)
	if !found["aac"] || !found["libopus"] {
		t.Errorf("missing audio encoders: %v", found)
	}
	if found["libx264"] {
		t.Error("video encoders must be ignored")
	}
}

func TestFFmpegEncoders_MissingBinary(t *testing.T) {
	f := &FFmpegEncoders{}
	if f.IsTypeSupported(ttypes.MimeMP4) {
		t.Error("no ffmpeg means no container support")
	}
	if _, err := f.NewRecorder(ttypes.MimeMP4); err == nil {
		t.Error("expected unsupported type error")
	}
}

func TestWAVRecorder_StopRightAfterStart(t *testing.T) {
	for i := 0; i < 200; i++ {
		stream := NewChanStream(16000, 16, nil)
		rec := NewWAVRecorder(0)
		if err := rec.Start(stream); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			if i%2 == 0 {
				rec.Stop(context.Background())
			} else {
				rec.Abort()
			}
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("run %d: recorder did not stop", i)
		}
	}
}

// fakeFFmpeg writes a script that swallows stdin and prints a canned
// container, standing in for the real encoder.
func fakeFFmpeg(t *testing.T) string {
	return writeEncoderScript(t, "#!/bin/sh\ncat >/dev/null\nprintf fake-mp4\n")
}

func writeEncoderScript(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script encoder")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestContainerRecorder(t *testing.T) *ContainerRecorder {
	return &ContainerRecorder{
		path:   fakeFFmpeg(t),
		mime:   ttypes.MimeMP4,
		codec:  codecArgs[ttypes.MimeMP4],
		logger: log.New(os.Stderr),
	}
}

func TestContainerRecorder_StartStop(t *testing.T) {
	stream := NewChanStream(16000, 16, nil)
	rec := newTestContainerRecorder(t)
	if err := rec.Start(stream); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	stream.Push(make([]float32, 320))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	blob, err := rec.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if string(blob.Data) != "fake-mp4" || blob.MimeType != ttypes.MimeMP4 {
		t.Errorf("blob = %q %q", blob.Data, blob.MimeType)
	}
	if blob.IsWAV() || rec.IsWAV() {
		t.Error("container recorder reported WAV")
	}
	if stream.Stopped() {
		t.Error("recorder must not stop the stream itself")
	}
}

func TestContainerRecorder_AbortRightAfterStart(t *testing.T) {
	stream := NewChanStream(16000, 16, nil)
	rec := newTestContainerRecorder(t)
	if err := rec.Start(stream); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Abort()
		rec.Abort()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Abort hung")
	}
}

func TestContainerRecorder_StopBeforeStart(t *testing.T) {
	rec := newTestContainerRecorder(t)
	if _, err := rec.Stop(context.Background()); err == nil {
		t.Error("expected error stopping an unstarted recorder")
	}
	rec.Abort()
}

func TestContainerRecorder_StopFlushesBufferedFrames(t *testing.T) {
	rec := &ContainerRecorder{
		// Echoes the raw samples so the output length counts them.
		path:   writeEncoderScript(t, "#!/bin/sh\nexec cat\n"),
		mime:   ttypes.MimeMP4,
		codec:  codecArgs[ttypes.MimeMP4],
		logger: log.New(os.Stderr),
	}
	stream := NewChanStream(16000, 16, nil)
	if err := rec.Start(stream); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	const frames, size = 12, 160
	for i := 0; i < frames; i++ {
		if !stream.Push(make([]float32, size)) {
			t.Fatalf("frame %d dropped", i)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	blob, err := rec.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if want := frames * size * 4; len(blob.Data) != want {
		t.Errorf("encoder received %d bytes, want %d", len(blob.Data), want)
	}
}
