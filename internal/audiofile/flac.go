package audiofile

import (
	"encoding/binary"
	"io"

	"github.com/tphakala/flac"
)

// flacDecoder converts the little-endian PCM blocks produced by the FLAC decoder.
// Blocks rarely align with the caller's request, so the unread tail of a block is kept
// in pending.
type flacDecoder struct {
	dec            *flac.Decoder
	ch             int
	bytesPerSample int
	scale          float32
	pending        []byte
}

func openFLAC(rs io.ReadSeeker) (decoder, error) {
	dec, err := flac.NewDecoder(rs)
	if err != nil {
		return nil, err
	}
	if dec.NChannels < 1 {
		return nil, ErrInvalidFile
	}
	scale, err := intScale(dec.BitsPerSample)
	if err != nil {
		return nil, err
	}
	return &flacDecoder{
		dec:            dec,
		ch:             dec.NChannels,
		bytesPerSample: dec.BitsPerSample / 8,
		scale:          scale,
	}, nil
}

func (d *flacDecoder) channels() int   { return d.ch }
func (d *flacDecoder) sampleRate() int { return d.dec.SampleRate }
func (d *flacDecoder) bitDepth() int   { return d.dec.BitsPerSample }

func (d *flacDecoder) frames() int64 {
	if d.dec.TotalSamples == 0 {
		return -1
	}
	return int64(d.dec.TotalSamples)
}

func (d *flacDecoder) rewind() error {
	return errRewindUnsupported
}

func (d *flacDecoder) decode(dst []float32) (int, error) {
	frameBytes := d.bytesPerSample * d.ch
	wantFrames := len(dst) / d.ch

	read := 0
	for read < wantFrames {
		if len(d.pending) < frameBytes {
			block, err := d.dec.Next()
			if err != nil {
				if read > 0 && err == io.EOF {
					return read, nil
				}
				return read, err
			}
			d.pending = block
			continue
		}

		n := min(wantFrames-read, len(d.pending)/frameBytes)
		d.convert(dst[read*d.ch:(read+n)*d.ch], d.pending[:n*frameBytes])
		d.pending = d.pending[n*frameBytes:]
		read += n
	}
	return read, nil
}

func (d *flacDecoder) convert(dst []float32, src []byte) {
	for i := range dst {
		b := src[i*d.bytesPerSample:]
		var sample int32
		switch d.bytesPerSample {
		case 1:
			sample = int32(int8(b[0]))
		case 2:
			sample = int32(int16(binary.LittleEndian.Uint16(b)))
		case 3:
			sample = int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
		case 4:
			sample = int32(binary.LittleEndian.Uint32(b))
		}
		dst[i] = float32(sample) / d.scale
	}
}
