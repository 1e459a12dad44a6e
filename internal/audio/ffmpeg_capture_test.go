package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"callstack/internal/domain"
	"callstack/internal/ports"
)

func TestFFMPEGCaptureStartNextAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nsleep 2\n")
	capture := NewFFMPEGCapture(script)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	fragment, err := session.Next(ctx)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if !strings.Contains(string(fragment), "hello") {
		t.Fatalf("unexpected bytes: %q", string(fragment))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if _, err := session.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after stop, got %v", err)
	}
}

func TestFFMPEGCaptureDrainsOutputAfterStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "trap.sh", "#!/usr/bin/env bash\ntrap 'printf tail; exit 0' INT\nprintf 'head'\nwhile true; do sleep 0.05; done\n")
	capture := NewFFMPEGCapture(script)

	session, err := capture.Start(context.Background(), ports.AudioConfig{Container: ContainerOgg})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var fragments [][]byte
	for {
		fragment, err := session.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		fragments = append(fragments, fragment)
	}

	blob, err := session.Finalize(fragments)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if string(blob.Data) != "headtail" {
		t.Fatalf("expected ordered output, got %q", string(blob.Data))
	}
	if blob.MIMEType != "audio/ogg" || blob.Filename != "audio.ogg" {
		t.Fatalf("unexpected blob metadata: %+v", blob)
	}
}

func TestFFMPEGCaptureStartEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	capture := NewFFMPEGCapture(script)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Start(ctx, ports.AudioConfig{})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFFMPEGCaptureMissingBinary(t *testing.T) {
	t.Parallel()

	capture := NewFFMPEGCapture(filepath.Join(t.TempDir(), "missing-ffmpeg"))
	_, err := capture.Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestCaptureArgsSelectContainer(t *testing.T) {
	t.Parallel()

	cfg := withAudioDefaults(ports.AudioConfig{})
	webm := strings.Join(captureArgs(cfg, FormatFor("")), " ")
	if !strings.Contains(webm, "-c:a libopus -f webm -") {
		t.Fatalf("unexpected webm args: %s", webm)
	}
	if !strings.Contains(webm, "-f pulse -i default") {
		t.Fatalf("expected default input, got %s", webm)
	}

	wavArgs := strings.Join(captureArgs(cfg, FormatFor("wav")), " ")
	if !strings.HasSuffix(wavArgs, "-f s16le -") {
		t.Fatalf("unexpected wav args: %s", wavArgs)
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-lc", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestStringsTrimSpaceSafe(t *testing.T) {
	t.Parallel()

	if got := stringsTrimSpaceSafe("  hi\n"); got != "hi" {
		t.Fatalf("unexpected trim result: %q", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
