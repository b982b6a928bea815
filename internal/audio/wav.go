package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrEmptyRecording is returned when writing a recording that captured no audio.
var ErrEmptyRecording = errors.New("recording has no audio")

const (
	bitsPerSample = 16
	pcmFormat     = 1
)

// wavHeader is the canonical 44-byte RIFF/WAVE header for PCM16LE audio.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

func newWAVHeader(dataSize, sampleRate, channels int) wavHeader {
	blockAlign := channels * bitsPerSample / 8
	return wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataSize),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   pcmFormat,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(dataSize),
	}
}

// EncodeWAV wraps raw PCM16LE audio bytes in a WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAV(&buf, pcm, sampleRate, channels); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAV writes raw PCM16LE audio bytes to out as a WAV stream.
func WriteWAV(out io.Writer, pcm []byte, sampleRate, channels int) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	w := bufio.NewWriter(out)
	if err := binary.Write(w, binary.LittleEndian, newWAVHeader(len(pcm), sampleRate, channels)); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// Recording accumulates PCM chunks from one capture session.
type Recording struct {
	SampleRate int
	Channels   int

	mu  sync.Mutex
	pcm []byte
}

func NewRecording(sampleRate, channels int) *Recording {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	return &Recording{SampleRate: sampleRate, Channels: channels}
}

func (r *Recording) Append(pcm []byte) {
	r.mu.Lock()
	r.pcm = append(r.pcm, pcm...)
	r.mu.Unlock()
}

func (r *Recording) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pcm)
}

func (r *Recording) Duration() time.Duration {
	bytesPerSecond := r.SampleRate * r.Channels * bitsPerSample / 8
	return time.Duration(r.Len()) * time.Second / time.Duration(bytesPerSecond)
}

func (r *Recording) WAV() ([]byte, error) {
	r.mu.Lock()
	pcm := append([]byte(nil), r.pcm...)
	r.mu.Unlock()
	return EncodeWAV(pcm, r.SampleRate, r.Channels)
}

// WriteFile stores the recording as dir/name.wav and returns the path.
func (r *Recording) WriteFile(dir, name string) (string, error) {
	if r.Len() == 0 {
		return "", ErrEmptyRecording
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}
	data, err := r.WAV()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write recording: %w", err)
	}
	return path, nil
}
