// Package metrics provides Prometheus collectors for playrec streams.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/playrec/internal/stream"
)

// StatsSource is anything that can report stream statistics, typically a *stream.Session.
type StatsSource interface {
	ID() string
	Stats() stream.Stats
}

// PeakSource reports the peak level since the previous call.
type PeakSource interface {
	TakePeak() float32
}

// GainSource is the view of a gain client exported as metrics.
type GainSource interface {
	Linear() float64
	Cycles() uint64
	TakePeak() float32
}

// StreamMetrics exposes session counters at scrape time. The realtime callback only
// updates atomics; nothing here runs on the audio thread.
type StreamMetrics struct {
	mu       sync.Mutex
	sessions []StatsSource
	gain     GainSource

	events *prometheus.CounterVec

	underflows   *prometheus.Desc
	overflows    *prometheus.Desc
	cycles       *prometheus.Desc
	frames       *prometheus.Desc
	ioErrors     *prometheus.Desc
	shortWrites  *prometheus.Desc
	rewinds      *prometheus.Desc
	ringFill     *prometheus.Desc
	ringCapacity *prometheus.Desc
	ringRatio    *prometheus.Desc
	state        *prometheus.Desc
	peak         *prometheus.Desc
	info         *prometheus.Desc

	gainLinear *prometheus.Desc
	gainCycles *prometheus.Desc
	gainPeak   *prometheus.Desc
}

var sessionLabels = []string{"session", "mode"}

func newDesc(name, help string, labels []string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "stream", name), help, labels, nil)
}

// NewStreamMetrics creates the stream collector and registers it with registry.
func NewStreamMetrics(registry prometheus.Registerer) (*StreamMetrics, error) {
	m := &StreamMetrics{
		underflows:   newDesc("underflows_total", "Playback cycles that ran out of buffered frames", sessionLabels),
		overflows:    newDesc("overflows_total", "Record cycles that dropped frames because the ring was full", sessionLabels),
		cycles:       newDesc("cycles_total", "Realtime process cycles handled", sessionLabels),
		frames:       newDesc("frames_total", "Frames moved by the realtime callback", sessionLabels),
		ioErrors:     newDesc("io_errors_total", "Failed file reads, writes and rewinds", sessionLabels),
		shortWrites:  newDesc("short_writes_total", "File writes that accepted fewer frames than offered", sessionLabels),
		rewinds:      newDesc("rewinds_total", "Times a playback file was looped", sessionLabels),
		ringFill:     newDesc("ring_fill_frames", "Frames currently buffered in the ring", sessionLabels),
		ringCapacity: newDesc("ring_capacity_frames", "Ring capacity in frames", sessionLabels),
		ringRatio:    newDesc("ring_fill_ratio", "Ring fill level (0.0 to 1.0)", sessionLabels),
		state:        newDesc("state", "Session lifecycle state (0 idle, 1 configured, 2 streaming, 3 shutting down, 4 closed)", sessionLabels),
		peak:         newDesc("peak_level", "Largest absolute sample since the previous scrape", sessionLabels),
		info:         newDesc("info", "Static stream parameters", []string{"session", "mode", "channels", "sample_rate"}),

		gainLinear: prometheus.NewDesc(prometheus.BuildFQName(Namespace, "gain", "linear"), "Current linear gain factor", nil, nil),
		gainCycles: prometheus.NewDesc(prometheus.BuildFQName(Namespace, "gain", "cycles_total"), "Realtime cycles processed by the gain client", nil, nil),
		gainPeak:   prometheus.NewDesc(prometheus.BuildFQName(Namespace, "gain", "peak_level"), "Largest absolute output sample since the previous scrape", nil, nil),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Session lifecycle events by mode and kind",
		}, []string{"mode", "event"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// AddSession starts exporting src.
func (m *StreamMetrics) AddSession(src StatsSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, src)
}

// RemoveSession stops exporting src.
func (m *StreamMetrics) RemoveSession(src StatsSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sessions {
		if s == src {
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			return
		}
	}
}

// RecordEvent counts a lifecycle event such as "start", "stop" or "xrun_burst".
func (m *StreamMetrics) RecordEvent(mode, event string) {
	m.events.WithLabelValues(mode, event).Inc()
}

// SetGain starts exporting the gain client g. Passing nil stops it.
func (m *StreamMetrics) SetGain(g GainSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gain = g
}

// Describe implements prometheus.Collector.
func (m *StreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		m.underflows, m.overflows, m.cycles, m.frames, m.ioErrors, m.shortWrites, m.rewinds,
		m.ringFill, m.ringCapacity, m.ringRatio, m.state, m.peak, m.info,
		m.gainLinear, m.gainCycles, m.gainPeak,
	} {
		ch <- d
	}
	m.events.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *StreamMetrics) Collect(ch chan<- prometheus.Metric) {
	m.mu.Lock()
	sessions := append([]StatsSource(nil), m.sessions...)
	gain := m.gain
	m.mu.Unlock()

	for _, src := range sessions {
		m.collectSession(ch, src)
	}
	m.events.Collect(ch)

	if gain != nil {
		ch <- prometheus.MustNewConstMetric(m.gainLinear, prometheus.GaugeValue, gain.Linear())
		ch <- prometheus.MustNewConstMetric(m.gainCycles, prometheus.CounterValue, float64(gain.Cycles()))
		ch <- prometheus.MustNewConstMetric(m.gainPeak, prometheus.GaugeValue, float64(gain.TakePeak()))
	}
}

func (m *StreamMetrics) collectSession(ch chan<- prometheus.Metric, src StatsSource) {
	st := src.Stats()
	labels := []string{src.ID(), st.Mode.String()}

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	counter(m.underflows, st.Underflows)
	counter(m.overflows, st.Overflows)
	counter(m.cycles, st.Cycles)
	counter(m.frames, st.Frames)
	counter(m.ioErrors, st.IOErrors)
	counter(m.shortWrites, st.ShortWrites)
	counter(m.rewinds, st.Rewinds)

	gauge(m.ringFill, float64(st.RingFill))
	gauge(m.ringCapacity, float64(st.RingCapacity))
	ratio := 0.0
	if st.RingCapacity > 0 {
		ratio = float64(st.RingFill) / float64(st.RingCapacity)
	}
	gauge(m.ringRatio, ratio)
	gauge(m.state, float64(st.State))

	if p, ok := src.(PeakSource); ok {
		gauge(m.peak, float64(p.TakePeak()))
	}

	ch <- prometheus.MustNewConstMetric(m.info, prometheus.GaugeValue, 1,
		src.ID(), st.Mode.String(), strconv.Itoa(st.Channels), strconv.Itoa(st.SampleRate))
}
