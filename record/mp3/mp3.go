// Package mp3 provides a record.Sink that encodes mp3 files with lame.
package mp3

import (
	"encoding/binary"
	"os"

	"github.com/go-audio/audio"
	"github.com/viert/lame"

	"pipelined.dev/domain"
)

// Sink saves audio to mp3 file. Samples are passed to the encoder as 16
// bit integers.
type Sink struct {
	path    string
	bitRate int
	quality int
	f       *os.File
	wr      *lame.LameWriter
	buf     []byte
}

// NewSink creates new Sink. Quality is lame quality from 0 (best) to 9.
func NewSink(path string, bitRate int, quality int) *Sink {
	return &Sink{
		path:    path,
		bitRate: bitRate,
		quality: quality,
	}
}

// BitDepth implements record.Sink.
func (s *Sink) BitDepth() int {
	return 16
}

// Open implements record.Sink.
func (s *Sink) Open(sampleRate, channels int) error {
	var err error
	s.f, err = os.Create(s.path)
	if err != nil {
		return err
	}
	s.wr = lame.NewWriter(s.f)
	s.wr.Encoder.SetBitrate(s.bitRate)
	s.wr.Encoder.SetQuality(s.quality)
	s.wr.Encoder.SetNumChannels(channels)
	s.wr.Encoder.SetInSamplerate(sampleRate)
	if channels == 1 {
		s.wr.Encoder.SetMode(lame.MONO)
	} else {
		s.wr.Encoder.SetMode(lame.JOINT_STEREO)
	}
	s.wr.Encoder.SetVBR(lame.VBR_RH)
	s.wr.Encoder.InitParams()
	return nil
}

// Write implements record.Sink.
func (s *Sink) Write(b *audio.IntBuffer) error {
	size := len(b.Data) * 2
	if cap(s.buf) < size {
		s.buf = make([]byte, size)
	}
	s.buf = s.buf[:size]
	for i, v := range b.Data {
		binary.LittleEndian.PutUint16(s.buf[i*2:], uint16(int16(v)))
	}
	_, err := s.wr.Write(s.buf)
	return err
}

// Close flushes encoder and closes the file.
func (s *Sink) Close() error {
	return domain.Join(s.wr.Close(), s.f.Close())
}
