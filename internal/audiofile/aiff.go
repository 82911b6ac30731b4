package audiofile

import (
	"io"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
)

type aiffDecoder struct {
	dec   *aiff.Decoder
	buf   *audio.IntBuffer
	ch    int
	rate  int
	depth int
	scale float32
}

func openAIFF(rs io.ReadSeeker) (decoder, error) {
	dec := aiff.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, ErrInvalidFile
	}
	dec.ReadInfo()

	format := dec.Format()
	if format == nil || format.NumChannels < 1 {
		return nil, ErrInvalidFile
	}
	scale, err := intScale(int(dec.BitDepth))
	if err != nil {
		return nil, err
	}

	return &aiffDecoder{
		dec: dec,
		buf: &audio.IntBuffer{
			Format: format,
			Data:   make([]int, 0, 4096*format.NumChannels),
		},
		ch:    format.NumChannels,
		rate:  format.SampleRate,
		depth: int(dec.BitDepth),
		scale: scale,
	}, nil
}

func (d *aiffDecoder) channels() int   { return d.ch }
func (d *aiffDecoder) sampleRate() int { return d.rate }
func (d *aiffDecoder) bitDepth() int   { return d.depth }
func (d *aiffDecoder) frames() int64   { return int64(d.dec.NumSampleFrames) }

func (d *aiffDecoder) rewind() error {
	return errRewindUnsupported
}

func (d *aiffDecoder) decode(dst []float32) (int, error) {
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
	for i, v := range d.buf.Data[:n] {
		dst[i] = float32(v) / d.scale
	}
	return n / d.ch, err
}
