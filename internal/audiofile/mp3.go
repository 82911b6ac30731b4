package audiofile

import (
	"encoding/binary"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// The MP3 decoder always produces 16-bit little-endian stereo, even for mono streams.
const (
	mp3Channels   = 2
	mp3FrameBytes = 4
)

type mp3Decoder struct {
	dec *gomp3.Decoder
	buf []byte
}

func openMP3(rs io.ReadSeeker) (decoder, error) {
	dec, err := gomp3.NewDecoder(rs)
	if err != nil {
		return nil, err
	}
	return &mp3Decoder{dec: dec, buf: make([]byte, 4096*mp3FrameBytes)}, nil
}

func (d *mp3Decoder) channels() int   { return mp3Channels }
func (d *mp3Decoder) sampleRate() int { return d.dec.SampleRate() }
func (d *mp3Decoder) bitDepth() int   { return 16 }

func (d *mp3Decoder) frames() int64 {
	if d.dec.Length() < 0 {
		return -1
	}
	return d.dec.Length() / mp3FrameBytes
}

func (d *mp3Decoder) rewind() error {
	_, err := d.dec.Seek(0, io.SeekStart)
	return err
}

func (d *mp3Decoder) decode(dst []float32) (int, error) {
	frames := len(dst) / mp3Channels
	if frames == 0 {
		return 0, nil
	}
	if need := frames * mp3FrameBytes; cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	buf := d.buf[:frames*mp3FrameBytes]

	n, err := io.ReadFull(d.dec, buf)
	frames = n / mp3FrameBytes
	if frames == 0 {
		if err == nil || err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}

	for i := range frames * mp3Channels {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(buf[2*i:]))) / 32768.0
	}
	return frames, err
}
