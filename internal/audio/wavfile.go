// internal/audio/wavfile.go
package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/mjibson/go-dsp/wav"
)

// DefaultChunkSize is the number of samples per callback when replaying a file
const DefaultChunkSize = 1024

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

var (
	// ErrUnsupportedChannels indicates the file is not mono
	ErrUnsupportedChannels = errors.New("only mono WAV files are supported")
	// ErrUnsupportedFormat indicates a sample encoding other than 8/16-bit PCM or 32-bit float
	ErrUnsupportedFormat = errors.New("unsupported WAV sample format")
	// ErrInvalidHeader indicates a header the decoder cannot work with
	ErrInvalidHeader = errors.New("invalid WAV header")
)

// WAVSource replays a mono WAV stream through a SampleCallback.
type WAVSource struct {
	w         *wav.Wav
	remaining int
	buf       []float32
}

// OpenWAV reads the WAV header from r. 8/16-bit PCM and 32-bit float files
// are supported. Samples are delivered in [-1, 1] with silence at 0.
func OpenWAV(r io.Reader) (*WAVSource, error) {
	w, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if w.NumChannels != 1 {
		return nil, fmt.Errorf("%w: file has %d channels", ErrUnsupportedChannels, w.NumChannels)
	}
	switch {
	case w.AudioFormat == wavFormatPCM && (w.BitsPerSample == 8 || w.BitsPerSample == 16):
	case w.AudioFormat == wavFormatIEEEFloat && w.BitsPerSample == 32:
	default:
		return nil, fmt.Errorf("%w: format %d with %d bits per sample",
			ErrUnsupportedFormat, w.AudioFormat, w.BitsPerSample)
	}
	return &WAVSource{w: w, remaining: w.Samples}, nil
}

// readHeader rejects the zero header fields that wav.New divides by.
func readHeader(r io.Reader) (w *wav.Wav, err error) {
	defer func() {
		if p := recover(); p != nil {
			w, err = nil, fmt.Errorf("%w: %v", ErrInvalidHeader, p)
		}
	}()
	w, err = wav.New(r)
	if err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if w.SampleRate == 0 {
		return nil, fmt.Errorf("%w: zero sample rate", ErrInvalidHeader)
	}
	return w, nil
}

// SampleRate returns the file's sample rate in Hz
func (s *WAVSource) SampleRate() float64 {
	return float64(s.w.SampleRate)
}

// Len returns the number of samples not yet streamed
func (s *WAVSource) Len() int {
	return s.remaining
}

// Stream delivers the remaining samples to cb in chunks of at most chunk
// samples. A non-positive chunk selects DefaultChunkSize. A truncated data
// chunk ends the stream early without error.
func (s *WAVSource) Stream(cb SampleCallback, chunk int) error {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	for s.remaining > 0 {
		n := min(chunk, s.remaining)
		raw, err := s.w.ReadSamples(n)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.remaining = 0
			return nil
		}
		if err != nil {
			return fmt.Errorf("read wav samples: %w", err)
		}
		samples, err := s.decode(raw)
		if err != nil {
			return err
		}
		s.remaining -= len(samples)
		cb(samples)
	}
	return nil
}

// decode converts raw samples to signed floats. wav.ReadFloats maps PCM to
// [0, 1], which would add a DC offset, so the conversion is done here.
func (s *WAVSource) decode(raw any) ([]float32, error) {
	switch d := raw.(type) {
	case []uint8:
		s.buf = s.buf[:0]
		for _, v := range d {
			s.buf = append(s.buf, (float32(v)-128)/128)
		}
	case []int16:
		s.buf = s.buf[:0]
		for _, v := range d {
			s.buf = append(s.buf, float32(v)/32768)
		}
	case []float32:
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedFormat, raw)
	}
	return s.buf, nil
}
