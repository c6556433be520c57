package record

import (
	"errors"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/domain"
)

// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
var ErrUnsupportedBitDepth = errors.New("only 16, 24 and 32 bit depth is supported")

// pcmFormat is the wav audio format tag of integer PCM.
const pcmFormat = 1

// Wav saves audio to wav file.
type Wav struct {
	path     string
	bitDepth int
	file     *os.File
	encoder  *wav.Encoder
}

// NewWav creates new wav sink.
func NewWav(path string, bitDepth int) (*Wav, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, ErrUnsupportedBitDepth
	}
	return &Wav{
		path:     path,
		bitDepth: bitDepth,
	}, nil
}

// BitDepth implements Sink.
func (s *Wav) BitDepth() int {
	return s.bitDepth
}

// Open implements Sink.
func (s *Wav) Open(sampleRate, channels int) error {
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	s.file = f
	s.encoder = wav.NewEncoder(f, sampleRate, s.bitDepth, channels, pcmFormat)
	return nil
}

// Write implements Sink.
func (s *Wav) Write(b *audio.IntBuffer) error {
	return s.encoder.Write(b)
}

// Close flushes encoder and closes the file.
func (s *Wav) Close() error {
	if err := s.encoder.Close(); err != nil {
		return domain.Join(err, s.file.Close())
	}
	return s.file.Close()
}
