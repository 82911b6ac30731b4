// Package audiofile adapts audio codecs to the frame-oriented Source and Sink used by the
// stream worker. Readers cover WAV, FLAC, AIFF, MP3 and Ogg Vorbis; the writer produces WAV.
// All samples are exchanged as interleaved float32 in [-1, 1].
package audiofile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/logger"
)

// Source is a readable, rewindable stream of interleaved frames.
type Source interface {
	// ReadFrames fills dst with up to count frames and returns the number read.
	// A result below count with a nil error means the end of the data was reached.
	ReadFrames(dst []float32, count int) (int, error)
	// Rewind positions the source back at its first frame.
	Rewind() error
	Channels() int
	SampleRate() int
	Close() error
}

// Sink is a writable stream of interleaved frames.
type Sink interface {
	// WriteFrames stores up to count frames from src and returns the number written.
	WriteFrames(src []float32, count int) (int, error)
	Channels() int
	SampleRate() int
	Close() error
}

var (
	ErrUnsupportedFormat   = errors.NewStd("unsupported audio file format")
	ErrInvalidFile         = errors.NewStd("invalid or corrupt audio file")
	ErrUnsupportedBitDepth = errors.NewStd("unsupported bit depth")
	ErrInvalidChannels     = errors.NewStd("invalid channel count")
	ErrInvalidSampleRate   = errors.NewStd("invalid sample rate")
	ErrClosed              = errors.NewStd("audio file is closed")
)

// GetLogger returns the audiofile logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audiofile")
}

// decoder is the per-codec part of a file source.
type decoder interface {
	// decode fills dst with whole frames and returns the number of frames decoded.
	// It returns 0 and io.EOF once the data is exhausted.
	decode(dst []float32) (int, error)
	// rewind restarts decoding from the first frame. Codecs without native seeking
	// return errRewindUnsupported and get rebuilt from the start of the file instead.
	rewind() error
	channels() int
	sampleRate() int
	bitDepth() int
	// frames returns the total length in frames, or -1 when unknown.
	frames() int64
}

var errRewindUnsupported = errors.NewStd("decoder cannot rewind")

type codec struct {
	name string
	open func(rs io.ReadSeeker) (decoder, error)
}

var codecs = map[string]codec{
	".wav":  {"wav", openWAV},
	".wave": {"wav", openWAV},
	".flac": {"flac", openFLAC},
	".aif":  {"aiff", openAIFF},
	".aiff": {"aiff", openAIFF},
	".aifc": {"aiff", openAIFF},
	".mp3":  {"mp3", openMP3},
	".ogg":  {"ogg", openOgg},
	".oga":  {"ogg", openOgg},
}

func lookupCodec(path string) (codec, error) {
	ext := strings.ToLower(filepath.Ext(path))
	c, ok := codecs[ext]
	if !ok {
		return codec{}, errors.New(ErrUnsupportedFormat).
			Component("audiofile").
			Category(errors.CategoryValidation).
			Context("extension", ext).
			Build()
	}
	return c, nil
}

// Open opens path for reading, choosing the codec from the file extension.
func Open(path string) (Source, error) {
	src, err := openFile(path)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func openFile(path string) (*fileSource, error) {
	c, err := lookupCodec(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileError(err, path, 0)
	}

	dec, err := c.open(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.New(err).
			Component("audiofile").
			Category(errors.CategoryFileParsing).
			FileContext(path, fileSize(path)).
			Context("format", c.name).
			Build()
	}
	if dec.channels() < 1 {
		_ = f.Close()
		return nil, errors.New(ErrInvalidChannels).
			Component("audiofile").
			Category(errors.CategoryFileParsing).
			Context("format", c.name).
			Build()
	}

	GetLogger().Debug("opened audio file",
		logger.String("path", path),
		logger.String("format", c.name),
		logger.Int("channels", dec.channels()),
		logger.Int("sample_rate", dec.sampleRate()))

	return &fileSource{file: f, path: path, codec: c, dec: dec}, nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// fileSource drives a codec decoder over an open file.
type fileSource struct {
	file   *os.File
	path   string
	codec  codec
	dec    decoder
	closed bool
}

func (s *fileSource) Channels() int   { return s.dec.channels() }
func (s *fileSource) SampleRate() int { return s.dec.sampleRate() }

func (s *fileSource) ReadFrames(dst []float32, count int) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	ch := s.dec.channels()
	count = min(count, len(dst)/ch)
	if count <= 0 {
		return 0, nil
	}

	read := 0
	for read < count {
		n, err := s.dec.decode(dst[read*ch : count*ch])
		read += n
		if err == io.EOF {
			return read, nil
		}
		if err != nil {
			return read, errors.New(err).
				Component("audiofile").
				Category(errors.CategoryFileIO).
				Context("format", s.codec.name).
				Context("frames_read", read).
				Build()
		}
		if n == 0 {
			// decoder made no progress without reporting EOF
			return read, nil
		}
	}
	return read, nil
}

func (s *fileSource) Rewind() error {
	if s.closed {
		return ErrClosed
	}
	err := s.dec.rewind()
	if err == nil {
		return nil
	}
	if !errors.Is(err, errRewindUnsupported) {
		return errors.New(err).
			Component("audiofile").
			Category(errors.CategoryFileIO).
			Context("operation", "rewind").
			Context("format", s.codec.name).
			Build()
	}

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return errors.New(err).
			Component("audiofile").
			Category(errors.CategoryFileIO).
			Context("operation", "rewind").
			Build()
	}
	dec, err := s.codec.open(s.file)
	if err != nil {
		return errors.New(err).
			Component("audiofile").
			Category(errors.CategoryFileParsing).
			Context("operation", "rewind").
			Context("format", s.codec.name).
			Build()
	}
	s.dec = dec
	return nil
}

func (s *fileSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// FileInfo describes an audio file.
type FileInfo struct {
	Path       string
	Format     string
	Channels   int
	SampleRate int
	BitDepth   int
	// Frames is -1 when the codec cannot tell the length without decoding the whole file.
	Frames   int64
	Duration time.Duration
}

func (fi FileInfo) String() string {
	length := "unknown"
	if fi.Frames >= 0 {
		length = fi.Duration.Round(time.Millisecond).String()
	}
	return fmt.Sprintf("%s: %s, %d ch, %d Hz, %d bit, %s",
		fi.Path, fi.Format, fi.Channels, fi.SampleRate, fi.BitDepth, length)
}

// Info reads the header of path and describes its contents.
func Info(path string) (FileInfo, error) {
	s, err := openFile(path)
	if err != nil {
		return FileInfo{}, err
	}
	defer func() { _ = s.Close() }()

	info := FileInfo{
		Path:       path,
		Format:     s.codec.name,
		Channels:   s.dec.channels(),
		SampleRate: s.dec.sampleRate(),
		BitDepth:   s.dec.bitDepth(),
		Frames:     s.dec.frames(),
	}
	if info.Frames >= 0 && info.SampleRate > 0 {
		info.Duration = time.Duration(info.Frames) * time.Second / time.Duration(info.SampleRate)
	}
	return info, nil
}

// intScale returns the divisor that maps signed integer samples of the given depth to [-1, 1].
func intScale(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8:
		return 128.0, nil
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, errors.New(ErrUnsupportedBitDepth).
			Component("audiofile").
			Category(errors.CategoryValidation).
			Context("bit_depth", bitDepth).
			Build()
	}
}
