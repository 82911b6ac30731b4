package audiofile

import (
	"io"

	"github.com/jfreymuth/oggvorbis"
)

type oggDecoder struct {
	dec *oggvorbis.Reader
}

func openOgg(rs io.ReadSeeker) (decoder, error) {
	dec, err := oggvorbis.NewReader(rs)
	if err != nil {
		return nil, err
	}
	return &oggDecoder{dec: dec}, nil
}

func (d *oggDecoder) channels() int   { return d.dec.Channels() }
func (d *oggDecoder) sampleRate() int { return d.dec.SampleRate() }

// Vorbis decodes straight to float; report the precision handed to callers.
func (d *oggDecoder) bitDepth() int { return 32 }

func (d *oggDecoder) frames() int64 {
	if d.dec.Length() == 0 {
		return -1
	}
	return d.dec.Length()
}

func (d *oggDecoder) rewind() error {
	return d.dec.SetPosition(0)
}

func (d *oggDecoder) decode(dst []float32) (int, error) {
	ch := d.dec.Channels()
	dst = dst[:len(dst)-len(dst)%ch]
	if len(dst) == 0 {
		return 0, nil
	}
	// Read counts values, not frames
	n, err := d.dec.Read(dst)
	return n / ch, err
}
