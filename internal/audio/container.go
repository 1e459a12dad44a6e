package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"callstack/internal/domain"
)

const (
	ContainerWebM = "webm"
	ContainerOgg  = "ogg"
	ContainerWAV  = "wav"
)

// Format describes how a container is produced and uploaded.
type Format struct {
	Container string
	MIMEType  string
	Filename  string
}

// FormatFor resolves a container name, falling back to webm.
func FormatFor(container string) Format {
	switch strings.ToLower(strings.TrimSpace(container)) {
	case ContainerOgg:
		return Format{Container: ContainerOgg, MIMEType: "audio/ogg", Filename: "audio.ogg"}
	case ContainerWAV:
		return Format{Container: ContainerWAV, MIMEType: "audio/wav", Filename: "audio.wav"}
	default:
		return Format{Container: ContainerWebM, MIMEType: "audio/webm", Filename: "audio.webm"}
	}
}

// Assemble joins fragments in the given order. Encoded containers are byte-concatenated;
// wav fragments are raw s16le PCM and get wrapped in a RIFF header.
func Assemble(format Format, sampleRate int, channels int, fragments [][]byte) (domain.AudioBlob, error) {
	size := 0
	for _, fragment := range fragments {
		size += len(fragment)
	}
	joined := make([]byte, 0, size)
	for _, fragment := range fragments {
		joined = append(joined, fragment...)
	}

	blob := domain.AudioBlob{Data: joined, MIMEType: format.MIMEType, Filename: format.Filename}
	if format.Container != ContainerWAV {
		return blob, nil
	}

	encoded, err := encodeWAV(joined, sampleRate, channels)
	if err != nil {
		return domain.AudioBlob{}, err
	}
	blob.Data = encoded
	return blob, nil
}

func encodeWAV(pcm []byte, sampleRate int, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}

	tmp, err := os.CreateTemp("", "callstack-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create wav buffer: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	enc := wav.NewEncoder(tmp, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}

	if _, err := tmp.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("rewind wav buffer: %w", err)
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(tmp); err != nil {
		return nil, fmt.Errorf("read wav buffer: %w", err)
	}
	return out.Bytes(), nil
}
