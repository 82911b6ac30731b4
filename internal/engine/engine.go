// Package engine defines the realtime audio engine the stream session drives, plus a
// hardware-free implementation for tests and the null backend.
//
// An engine owns a realtime thread that calls the registered ProcessFunc once per cycle
// with a fixed number of frames. The process function must not block, allocate or log.
package engine

import (
	"fmt"

	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/logger"
)

// Buffers exposes the per-channel port buffers of the current cycle. Slices returned are
// only valid until the process function returns.
type Buffers interface {
	Input(channel, nframes int) []float32
	Output(channel, nframes int) []float32
}

// ProcessFunc is invoked by the engine's realtime thread once per cycle.
type ProcessFunc func(nframes int, bufs Buffers)

// Engine is a realtime audio engine client.
type Engine interface {
	// Name returns the client name the engine registered under.
	Name() string
	SampleRate() int
	// BufferSize returns the number of frames per cycle.
	BufferSize() int
	// RegisterPorts declares the client's input and output ports. Channel i of Buffers maps
	// to the i-th name.
	RegisterPorts(inputs, outputs []string) error
	// SetProcessCallback installs the realtime callback. It must be called before Activate.
	SetProcessCallback(fn ProcessFunc) error
	// OnShutdown registers a handler for the engine going away underneath the client.
	// Handlers are not invoked for a Deactivate or Close requested by the client.
	OnShutdown(fn func(reason string))
	Activate() error
	Deactivate() error
	Close() error
}

var (
	ErrNoProcessCallback = errors.NewStd("no process callback set")
	ErrNoPorts           = errors.NewStd("no ports registered")
	ErrActive            = errors.NewStd("engine is active")
	ErrClosed            = errors.NewStd("engine is closed")
)

// GetLogger returns the engine logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("engine")
}

// PortNames returns n port names of the form prefix_01, prefix_02, ...
func PortNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range n {
		names[i] = fmt.Sprintf("%s_%02d", prefix, i+1)
	}
	return names
}

// PortBuffers is a preallocated Buffers implementation with capacity for maxFrames frames
// per channel.
type PortBuffers struct {
	inputs    [][]float32
	outputs   [][]float32
	maxFrames int
}

// NewPortBuffers allocates storage for the given number of input and output channels.
func NewPortBuffers(inputs, outputs, maxFrames int) *PortBuffers {
	p := &PortBuffers{
		inputs:    make([][]float32, inputs),
		outputs:   make([][]float32, outputs),
		maxFrames: maxFrames,
	}
	for i := range p.inputs {
		p.inputs[i] = make([]float32, maxFrames)
	}
	for i := range p.outputs {
		p.outputs[i] = make([]float32, maxFrames)
	}
	return p
}

// MaxFrames returns the per-channel capacity.
func (p *PortBuffers) MaxFrames() int { return p.maxFrames }

// NumInputs returns the number of input channels.
func (p *PortBuffers) NumInputs() int { return len(p.inputs) }

// NumOutputs returns the number of output channels.
func (p *PortBuffers) NumOutputs() int { return len(p.outputs) }

// Input returns the first nframes samples of input channel ch, or nil for an unknown channel.
func (p *PortBuffers) Input(ch, nframes int) []float32 {
	if ch < 0 || ch >= len(p.inputs) {
		return nil
	}
	return p.inputs[ch][:min(max(nframes, 0), p.maxFrames)]
}

// Output returns the first nframes samples of output channel ch, or nil for an unknown channel.
func (p *PortBuffers) Output(ch, nframes int) []float32 {
	if ch < 0 || ch >= len(p.outputs) {
		return nil
	}
	return p.outputs[ch][:min(max(nframes, 0), p.maxFrames)]
}

// ClearOutputs zeroes the first nframes of every output channel.
func (p *PortBuffers) ClearOutputs(nframes int) {
	for ch := range p.outputs {
		clear(p.Output(ch, nframes))
	}
}
