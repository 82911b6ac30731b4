package miniaudio

import (
	"encoding/binary"
	"math"

	"github.com/tphakala/playrec/internal/engine"
)

const bytesPerSample = 4 // FormatF32

// dataCallback adapts malgo's interleaved byte buffers to per-channel port buffers.
// It runs on the device thread and must not allocate.
type dataCallback struct {
	process  engine.ProcessFunc
	bufs     *engine.PortBuffers
	inputs   int
	outputs  int
	maxChunk int
}

func (c *dataCallback) onData(out, in []byte, frameCount uint32) {
	total := int(frameCount)
	for done := 0; done < total; {
		n := min(total-done, c.maxChunk)
		if c.inputs > 0 {
			deinterleaveF32(c.bufs, in[done*c.inputs*bytesPerSample:], c.inputs, n)
		}
		c.bufs.ClearOutputs(n)

		c.process(n, c.bufs)

		if c.outputs > 0 {
			interleaveF32(out[done*c.outputs*bytesPerSample:], c.bufs, c.outputs, n)
		}
		done += n
	}
}

// deinterleaveF32 splits n frames of little-endian float32 samples into the input ports.
func deinterleaveF32(dst *engine.PortBuffers, src []byte, channels, n int) {
	for ch := range channels {
		port := dst.Input(ch, n)
		for i := range port {
			off := (i*channels + ch) * bytesPerSample
			port[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
		}
	}
}

// interleaveF32 packs n frames of the output ports into little-endian float32 samples.
func interleaveF32(dst []byte, src *engine.PortBuffers, channels, n int) {
	for ch := range channels {
		port := src.Output(ch, n)
		for i, v := range port {
			off := (i*channels + ch) * bytesPerSample
			binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(v))
		}
	}
}
