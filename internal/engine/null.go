package engine

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/logger"
)

// NullConfig configures a Null engine.
type NullConfig struct {
	Name       string
	SampleRate int
	BufferSize int
	// Manual disables the internal clock; cycles only run through Cycle.
	Manual bool
}

// Null is an engine without audio hardware. A ticker paced at BufferSize/SampleRate stands
// in for the realtime thread, capture ports carry whatever the input generator produces
// (silence by default) and playback ports can be observed with an output tap.
type Null struct {
	cfg NullConfig

	mu       sync.Mutex
	inputs   []string
	outputs  []string
	bufs     *PortBuffers
	process  ProcessFunc
	handlers []func(string)
	active   bool
	closed   bool
	stop     chan struct{}
	done     chan struct{}

	// serialises clocked and manual cycles
	cycleMu   sync.Mutex
	running   bool // guarded by cycleMu; no cycle starts once it is false
	generator func(channel int, dst []float32)
	tap       func(channel int, src []float32)
	cycles    atomic.Uint64
}

// NewNull creates a null engine. Zero values default to 48 kHz and 512-frame cycles.
func NewNull(cfg NullConfig) *Null {
	if cfg.Name == "" {
		cfg.Name = "null"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 512
	}
	return &Null{cfg: cfg}
}

func (n *Null) Name() string     { return n.cfg.Name }
func (n *Null) SampleRate() int  { return n.cfg.SampleRate }
func (n *Null) BufferSize() int  { return n.cfg.BufferSize }
func (n *Null) Cycles() uint64   { return n.cycles.Load() }

// Inputs returns the registered capture port names.
func (n *Null) Inputs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.inputs)
}

// Outputs returns the registered playback port names.
func (n *Null) Outputs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.outputs)
}

// SetInputGenerator installs fn to fill each capture port at the start of every cycle.
func (n *Null) SetInputGenerator(fn func(channel int, dst []float32)) {
	n.cycleMu.Lock()
	n.generator = fn
	n.cycleMu.Unlock()
}

// SetOutputTap installs fn to observe each playback port after the process callback ran.
func (n *Null) SetOutputTap(fn func(channel int, src []float32)) {
	n.cycleMu.Lock()
	n.tap = fn
	n.cycleMu.Unlock()
}

func (n *Null) RegisterPorts(inputs, outputs []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	if n.active {
		return errors.New(ErrActive).
			Component("engine").
			Category(errors.CategoryState).
			Context("operation", "register_ports").
			Build()
	}
	if len(inputs) == 0 && len(outputs) == 0 {
		return errors.New(ErrNoPorts).
			Component("engine").
			Category(errors.CategoryConfiguration).
			Build()
	}

	n.inputs = append([]string(nil), inputs...)
	n.outputs = append([]string(nil), outputs...)
	n.cycleMu.Lock()
	n.bufs = NewPortBuffers(len(inputs), len(outputs), n.cfg.BufferSize)
	n.cycleMu.Unlock()
	return nil
}

func (n *Null) SetProcessCallback(fn ProcessFunc) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.active {
		return errors.New(ErrActive).
			Component("engine").
			Category(errors.CategoryState).
			Context("operation", "set_process_callback").
			Build()
	}
	n.cycleMu.Lock()
	n.process = fn
	n.cycleMu.Unlock()
	return nil
}

func (n *Null) OnShutdown(fn func(reason string)) {
	n.mu.Lock()
	n.handlers = append(n.handlers, fn)
	n.mu.Unlock()
}

func (n *Null) Activate() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch {
	case n.closed:
		return ErrClosed
	case n.active:
		return nil
	case n.process == nil:
		return errors.New(ErrNoProcessCallback).
			Component("engine").
			Category(errors.CategoryState).
			Build()
	case n.bufs == nil:
		return errors.New(ErrNoPorts).
			Component("engine").
			Category(errors.CategoryState).
			Build()
	}

	n.active = true
	n.cycleMu.Lock()
	n.running = true
	n.cycleMu.Unlock()
	if !n.cfg.Manual {
		n.stop = make(chan struct{})
		n.done = make(chan struct{})
		go n.clock(n.stop, n.done)
	}

	GetLogger().Debug("null engine activated",
		logger.String("client", n.cfg.Name),
		logger.Int("sample_rate", n.cfg.SampleRate),
		logger.Int("buffer_size", n.cfg.BufferSize),
		logger.Bool("manual", n.cfg.Manual))
	return nil
}

func (n *Null) period() time.Duration {
	return time.Duration(n.cfg.BufferSize) * time.Second / time.Duration(n.cfg.SampleRate)
}

func (n *Null) clock(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(n.period())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n.runCycle(n.cfg.BufferSize)
		}
	}
}

// Cycle runs one process cycle of nframes frames on the calling goroutine. nframes is
// clamped to the configured buffer size. It does nothing unless the engine is active.
func (n *Null) Cycle(nframes int) {
	n.runCycle(min(nframes, n.cfg.BufferSize))
}

func (n *Null) runCycle(nframes int) {
	n.cycleMu.Lock()
	defer n.cycleMu.Unlock()
	if !n.running {
		return
	}

	bufs := n.bufs
	for ch := range bufs.NumInputs() {
		in := bufs.Input(ch, nframes)
		if n.generator != nil {
			n.generator(ch, in)
		} else {
			clear(in)
		}
	}
	bufs.ClearOutputs(nframes)

	n.process(nframes, bufs)

	if n.tap != nil {
		for ch := range bufs.NumOutputs() {
			n.tap(ch, bufs.Output(ch, nframes))
		}
	}
	n.cycles.Add(1)
}

// Shutdown simulates the engine going away: the clock stops and shutdown handlers run on
// the calling goroutine.
func (n *Null) Shutdown(reason string) {
	n.mu.Lock()
	n.stopClockLocked()
	handlers := slices.Clone(n.handlers)
	n.mu.Unlock()

	for _, fn := range handlers {
		fn(reason)
	}
}

// stopClockLocked returns only after any cycle in progress has finished.
func (n *Null) stopClockLocked() {
	n.active = false
	if n.stop != nil {
		close(n.stop)
		<-n.done
		n.stop, n.done = nil, nil
	}
	n.cycleMu.Lock()
	n.running = false
	n.cycleMu.Unlock()
}

func (n *Null) Deactivate() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopClockLocked()
	return nil
}

func (n *Null) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopClockLocked()
	n.closed = true
	return nil
}
