// ABOUTME: Frame sources replayed by the paced drivers
// ABOUTME: Test tone generator plus looping WAV, MP3 and FLAC file readers
package input

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// frameSource produces interleaved int16 frames at its own rate
type frameSource interface {
	// Read fills dst with whole frames and returns the number of samples written
	Read(dst []int16) (int, error)
	SampleRate() int
	Channels() int
	Close() error
}

// toneSource generates a sine wave whose amplitude swells and fades so the
// visualizer has something to react to
type toneSource struct {
	sampleRate  int
	frequency   float64
	envelopeHz  float64
	sampleIndex uint64
}

func newToneSource(sampleRate int, frequency, envelopeHz float64) *toneSource {
	return &toneSource{
		sampleRate: sampleRate,
		frequency:  frequency,
		envelopeHz: envelopeHz,
	}
}

func (s *toneSource) Read(dst []int16) (int, error) {
	for i := range dst {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleRate)
		sample := math.Sin(2 * math.Pi * s.frequency * t)

		// Envelope runs between 5% and 80% of full scale
		env := 0.05 + 0.75*(0.5-0.5*math.Cos(2*math.Pi*s.envelopeHz*t))

		dst[i] = int16(sample * env * 32767.0)
	}
	s.sampleIndex += uint64(len(dst))
	return len(dst), nil
}

func (s *toneSource) SampleRate() int { return s.sampleRate }
func (s *toneSource) Channels() int   { return 1 }
func (s *toneSource) Close() error    { return nil }

// openFileSource picks a decoder from the file extension
func openFileSource(path string) (frameSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return newWAVSource(path)
	case ".mp3":
		return newMP3Source(path)
	case ".flac":
		return newFLACSource(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .wav, .mp3, .flac)", ext)
	}
}

// wavSource loops over a WAV file
type wavSource struct {
	file     *os.File
	decoder  *wav.Decoder
	buf      *goaudio.IntBuffer
	rate     int
	channels int
	shift    int
}

func newWAVSource(path string) (*wavSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}

	var shift int
	switch decoder.BitDepth {
	case 8:
		shift = -8
	case 16:
		shift = 0
	case 24:
		shift = 8
	case 32:
		shift = 16
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported WAV bit depth: %d", decoder.BitDepth)
	}

	return &wavSource{
		file:     f,
		decoder:  decoder,
		rate:     int(decoder.SampleRate),
		channels: int(decoder.NumChans),
		shift:    shift,
	}, nil
}

func (s *wavSource) Read(dst []int16) (int, error) {
	if s.buf == nil || len(s.buf.Data) < len(dst) {
		s.buf = &goaudio.IntBuffer{
			Data:   make([]int, len(dst)),
			Format: &goaudio.Format{SampleRate: s.rate, NumChannels: s.channels},
		}
	}
	s.buf.Data = s.buf.Data[:len(dst)]

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("wav decode error: %w", err)
	}

	for i := 0; i < n; i++ {
		v := s.buf.Data[i]
		switch {
		case s.shift > 0:
			v >>= s.shift
		case s.shift < 0:
			// 8-bit WAV is unsigned
			v = (v - 128) << -s.shift
		}
		dst[i] = int16(v)
	}

	if n == 0 {
		return 0, s.rewind()
	}
	return n, nil
}

func (s *wavSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	s.decoder = wav.NewDecoder(s.file)
	if !s.decoder.IsValidFile() {
		return fmt.Errorf("WAV file became unreadable on rewind")
	}
	return nil
}

func (s *wavSource) SampleRate() int { return s.rate }
func (s *wavSource) Channels() int   { return s.channels }
func (s *wavSource) Close() error    { return s.file.Close() }

// mp3Source loops over an MP3 file; the decoder always yields s16le stereo
type mp3Source struct {
	file    *os.File
	decoder *mp3.Decoder
	raw     []byte
}

func newMP3Source(path string) (*mp3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	return &mp3Source{file: f, decoder: decoder}, nil
}

func (s *mp3Source) Read(dst []int16) (int, error) {
	// Whole stereo frames only
	want := (len(dst) / 2) * 4
	if cap(s.raw) < want {
		s.raw = make([]byte, want)
	}
	raw := s.raw[:want]

	n, err := io.ReadFull(s.decoder, raw)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("mp3 decode error: %w", err)
	}

	samples := (n / 4) * 2
	for i := 0; i < samples; i++ {
		dst[i] = int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
	}

	if err != nil {
		if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
			return samples, fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		decoder, decErr := mp3.NewDecoder(s.file)
		if decErr != nil {
			return samples, fmt.Errorf("failed to create new decoder: %w", decErr)
		}
		s.decoder = decoder
	}
	return samples, nil
}

func (s *mp3Source) SampleRate() int { return s.decoder.SampleRate() }
func (s *mp3Source) Channels() int   { return 2 }
func (s *mp3Source) Close() error    { return s.file.Close() }

// flacSource loops over a FLAC file, carrying partial frames between reads
type flacSource struct {
	file     *os.File
	stream   *flac.Stream
	rate     int
	channels int
	bitDepth int
	pending  []int16
}

func newFLACSource(path string) (*flacSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	return &flacSource{
		file:     f,
		stream:   stream,
		rate:     int(stream.Info.SampleRate),
		channels: int(stream.Info.NChannels),
		bitDepth: int(stream.Info.BitsPerSample),
	}, nil
}

func (s *flacSource) Read(dst []int16) (int, error) {
	written := copy(dst, s.pending)
	s.pending = s.pending[written:]

	for written < len(dst) {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
					return written, fmt.Errorf("failed to seek to start: %w", seekErr)
				}
				stream, decErr := flac.New(s.file)
				if decErr != nil {
					return written, fmt.Errorf("failed to create new stream: %w", decErr)
				}
				s.stream = stream
				return written, nil
			}
			return written, err
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < s.channels; ch++ {
				v := s.scale(frame.Subframes[ch].Samples[i])
				if written < len(dst) {
					dst[written] = v
					written++
				} else {
					s.pending = append(s.pending, v)
				}
			}
		}
	}
	return written, nil
}

// scale brings a sample of the stream's bit depth to 16 bits
func (s *flacSource) scale(sample int32) int16 {
	shift := s.bitDepth - 16
	if shift > 0 {
		return int16(sample >> shift)
	}
	return int16(sample << -shift)
}

func (s *flacSource) SampleRate() int { return s.rate }
func (s *flacSource) Channels() int   { return s.channels }
func (s *flacSource) Close() error    { return s.file.Close() }
