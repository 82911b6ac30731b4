package audiofile

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/playrec/internal/errors"
)

// WAV format tags from the fmt chunk.
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

type wavDecoder struct {
	dec    *wav.Decoder
	buf    *audio.IntBuffer
	float  bool
	scale  float32
	offset int // 8-bit WAV is unsigned
	ch     int
}

func openWAV(rs io.ReadSeeker) (decoder, error) {
	dec := wav.NewDecoder(rs)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, err
	}
	if dec.NumChans == 0 {
		return nil, ErrInvalidFile
	}

	d := &wavDecoder{
		dec: dec,
		ch:  int(dec.NumChans),
	}
	switch {
	case dec.WavAudioFormat == wavFormatFloat:
		if dec.BitDepth != 32 {
			return nil, ErrUnsupportedBitDepth
		}
		d.float = true
	default:
		scale, err := intScale(int(dec.BitDepth))
		if err != nil {
			return nil, err
		}
		d.scale = scale
		if dec.BitDepth == 8 {
			d.offset = 128
		}
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}
	if dec.PCMChunk == nil {
		return nil, ErrInvalidFile
	}

	d.buf = &audio.IntBuffer{
		Format: &audio.Format{NumChannels: d.ch, SampleRate: int(dec.SampleRate)},
		Data:   make([]int, 0, 4096*d.ch),
	}
	return d, nil
}

func (d *wavDecoder) channels() int   { return d.ch }
func (d *wavDecoder) sampleRate() int { return int(d.dec.SampleRate) }
func (d *wavDecoder) bitDepth() int   { return int(d.dec.BitDepth) }

func (d *wavDecoder) frames() int64 {
	blockAlign := int64(d.ch) * int64(d.dec.BitDepth/8)
	if blockAlign == 0 {
		return -1
	}
	return d.dec.PCMLen() / blockAlign
}

func (d *wavDecoder) rewind() error {
	return d.dec.Rewind()
}

func (d *wavDecoder) decode(dst []float32) (int, error) {
	samples := len(dst) - len(dst)%d.ch
	if samples == 0 {
		return 0, nil
	}
	if cap(d.buf.Data) < samples {
		d.buf.Data = make([]int, samples)
	}
	d.buf.Data = d.buf.Data[:samples]

	n, err := d.dec.PCMBuffer(d.buf)
	n -= n % d.ch
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	if d.float {
		for i, v := range d.buf.Data[:n] {
			dst[i] = math.Float32frombits(uint32(int32(v)))
		}
	} else {
		for i, v := range d.buf.Data[:n] {
			dst[i] = float32(v-d.offset) / d.scale
		}
	}
	return n / d.ch, err
}

// SampleFormat selects the sample encoding of recorded WAV files.
type SampleFormat int

const (
	// FormatFloat32 writes 32-bit IEEE float samples.
	FormatFloat32 SampleFormat = iota
	FormatPCM16
	FormatPCM24
	FormatPCM32
)

var sampleFormatNames = map[SampleFormat]string{
	FormatFloat32: "float32",
	FormatPCM16:   "pcm16",
	FormatPCM24:   "pcm24",
	FormatPCM32:   "pcm32",
}

func (f SampleFormat) String() string {
	if name, ok := sampleFormatNames[f]; ok {
		return name
	}
	return "unknown"
}

// BitDepth returns the stored bits per sample.
func (f SampleFormat) BitDepth() int {
	switch f {
	case FormatPCM16:
		return 16
	case FormatPCM24:
		return 24
	default:
		return 32
	}
}

// ParseSampleFormat parses a format name such as "float32" or "pcm16".
func ParseSampleFormat(name string) (SampleFormat, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range sampleFormatNames {
		if n == name {
			return f, nil
		}
	}
	return 0, errors.New(ErrUnsupportedFormat).
		Component("audiofile").
		Category(errors.CategoryValidation).
		Context("sample_format", name).
		Build()
}

// Create creates path as a WAV file and returns a Sink writing frames to it.
func Create(path string, channels, sampleRate int, format SampleFormat) (Sink, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".wav" && ext != ".wave" {
		return nil, errors.New(ErrUnsupportedFormat).
			Component("audiofile").
			Category(errors.CategoryValidation).
			Context("extension", ext).
			Context("operation", "create").
			Build()
	}
	if channels < 1 {
		return nil, errors.New(ErrInvalidChannels).
			Component("audiofile").
			Category(errors.CategoryValidation).
			Context("channels", channels).
			Build()
	}
	if sampleRate <= 0 {
		return nil, errors.New(ErrInvalidSampleRate).
			Component("audiofile").
			Category(errors.CategoryValidation).
			Context("sample_rate", sampleRate).
			Build()
	}
	if _, ok := sampleFormatNames[format]; !ok {
		return nil, errors.New(ErrUnsupportedFormat).
			Component("audiofile").
			Category(errors.CategoryValidation).
			Context("sample_format", int(format)).
			Build()
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.New(err).
			Component("audiofile").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Context("operation", "create").
			Build()
	}

	audioFormat := wavFormatPCM
	if format == FormatFloat32 {
		audioFormat = wavFormatFloat
	}

	return &wavSink{
		file:     f,
		path:     path,
		enc:      wav.NewEncoder(f, sampleRate, format.BitDepth(), channels, audioFormat),
		format:   format,
		channels: channels,
		rate:     sampleRate,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: format.BitDepth(),
		},
	}, nil
}

type wavSink struct {
	file     *os.File
	path     string
	enc      *wav.Encoder
	buf      *audio.IntBuffer
	format   SampleFormat
	channels int
	rate     int
	started  bool
	closed   bool
}

func (s *wavSink) Channels() int   { return s.channels }
func (s *wavSink) SampleRate() int { return s.rate }

func (s *wavSink) WriteFrames(src []float32, count int) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	count = min(count, len(src)/s.channels)
	if count <= 0 {
		return 0, nil
	}

	samples := count * s.channels
	if cap(s.buf.Data) < samples {
		s.buf.Data = make([]int, samples)
	}
	s.buf.Data = s.buf.Data[:samples]
	encodeSamples(s.buf.Data, src[:samples], s.format)

	if err := s.enc.Write(s.buf); err != nil {
		return 0, errors.New(err).
			Component("audiofile").
			Category(errors.CategoryFileIO).
			FileContext(s.path, 0).
			Context("frames", count).
			Build()
	}
	s.started = true
	return count, nil
}

// encodeSamples converts float samples to the integer representation the encoder writes.
// Float output keeps the IEEE bit pattern; the 32-bit encoder path stores it unchanged.
func encodeSamples(dst []int, src []float32, format SampleFormat) {
	if format == FormatFloat32 {
		for i, v := range src {
			dst[i] = int(int32(math.Float32bits(v)))
		}
		return
	}

	peak := float64(int64(1)<<(format.BitDepth()-1) - 1)
	for i, v := range src {
		x := float64(v)
		if x > 1 {
			x = 1
		} else if x < -1 {
			x = -1
		}
		dst[i] = int(math.Round(x * peak))
	}
}

func (s *wavSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var encErr error
	if !s.started {
		// emit the headers so an empty recording is still a valid file
		s.buf.Data = s.buf.Data[:0]
		encErr = s.enc.Write(s.buf)
	}
	if encErr == nil {
		encErr = s.enc.Close()
	}
	fileErr := s.file.Close()
	if encErr != nil {
		return errors.New(encErr).
			Component("audiofile").
			Category(errors.CategoryFileIO).
			FileContext(s.path, 0).
			Context("operation", "finalize").
			Build()
	}
	if fileErr != nil {
		return errors.New(fileErr).
			Component("audiofile").
			Category(errors.CategoryFileIO).
			FileContext(s.path, 0).
			Context("operation", "close").
			Build()
	}
	return nil
}
