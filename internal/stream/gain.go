package stream

import (
	"math"
	"sync/atomic"

	"github.com/tphakala/playrec/internal/engine"
	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/frames"
	"github.com/tphakala/playrec/internal/logger"
	"github.com/tphakala/playrec/internal/ringbuffer"
)

// ErrInvalidGain is returned for negative, NaN or infinite linear gain.
var ErrInvalidGain = errors.NewStd("gain must be a finite non-negative factor")

// Gain is a pass-through processor that multiplies every input port into the matching
// output port. The factor can be changed while the engine runs.
type Gain struct {
	channels int
	linear   atomic.Uint32 // float32 bits
	counters Counters
}

// NewGain creates a gain stage for channels port pairs at unity gain.
func NewGain(channels int) (*Gain, error) {
	if channels < 1 || channels > ringbuffer.MaxChannels {
		return nil, configError(ErrInvalidChannels, "channels", channels)
	}
	g := &Gain{channels: channels}
	g.linear.Store(math.Float32bits(1))
	return g, nil
}

func (g *Gain) Channels() int { return g.channels }

// SetLinear sets the gain factor. The factor is applied as a float32, so anything above
// math.MaxFloat32 is rejected.
func (g *Gain) SetLinear(linear float64) error {
	if linear < 0 || math.IsNaN(linear) || linear > math.MaxFloat32 {
		return errors.New(ErrInvalidGain).
			Component("stream").
			Category(errors.CategoryValidation).
			Context("linear", linear).
			Build()
	}
	g.linear.Store(math.Float32bits(float32(linear)))
	return nil
}

// SetDB sets the gain in decibels.
func (g *Gain) SetDB(db float64) error {
	if math.IsNaN(db) || math.IsInf(db, 1) {
		return errors.New(ErrInvalidGain).
			Component("stream").
			Category(errors.CategoryValidation).
			Context("db", db).
			Build()
	}
	return g.SetLinear(frames.DBToLinear(db))
}

// Linear returns the gain factor.
func (g *Gain) Linear() float64 {
	return float64(math.Float32frombits(g.linear.Load()))
}

// DB returns the gain in decibels, -Inf for a zero factor.
func (g *Gain) DB() float64 { return frames.LinearToDB(g.Linear()) }

// Process runs one cycle. It is safe for the realtime thread.
func (g *Gain) Process(nframes int, bufs engine.Buffers) {
	gain := math.Float32frombits(g.linear.Load())
	var peak float32
	for ch := range g.channels {
		in := bufs.Input(ch, nframes)
		out := bufs.Output(ch, nframes)
		n := frames.ApplyGain(out, in, gain)
		clear(out[n:])
		for _, v := range out[:n] {
			peak = max(peak, abs32(v))
		}
	}
	g.counters.Cycles.Add(1)
	g.counters.Frames.Add(uint64(nframes))
	g.counters.notePeak(peak)
}

// TakePeak returns the largest absolute output sample since the previous call.
func (g *Gain) TakePeak() float32 { return g.counters.TakePeak() }

// Cycles returns the number of processed cycles.
func (g *Gain) Cycles() uint64 { return g.counters.Cycles.Load() }

// Attach registers in_NN and out_NN ports on eng and installs the gain as its process
// callback. The caller activates the engine.
func (g *Gain) Attach(eng engine.Engine) error {
	if err := eng.RegisterPorts(engine.PortNames("in", g.channels), engine.PortNames("out", g.channels)); err != nil {
		return err
	}
	if err := eng.SetProcessCallback(g.Process); err != nil {
		return err
	}
	GetLogger().Info("gain attached",
		logger.String("engine", eng.Name()),
		logger.Int("channels", g.channels),
		logger.Float64("linear", g.Linear()),
		logger.Float64("db", g.DB()))
	return nil
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
