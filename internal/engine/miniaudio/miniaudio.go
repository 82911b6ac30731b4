// Package miniaudio implements engine.Engine on top of miniaudio through malgo. It reaches
// JACK, ALSA, PulseAudio, CoreAudio and WASAPI with one code path.
package miniaudio

import (
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/playrec/internal/engine"
	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/logger"
)

var (
	ErrUnknownBackend = errors.NewStd("unknown audio backend")
	ErrDeviceNotFound = errors.NewStd("audio device not found")
)

// Config selects the backend and device parameters.
type Config struct {
	// Backend is one of auto, jack, alsa, pulseaudio, coreaudio, wasapi or null.
	Backend    string
	ClientName string
	SampleRate int
	BufferSize int
	// PlaybackDevice and CaptureDevice match a device name or hex id; empty means default.
	PlaybackDevice string
	CaptureDevice  string
}

var backends = map[string]malgo.Backend{
	"jack":       malgo.BackendJack,
	"alsa":       malgo.BackendAlsa,
	"pulseaudio": malgo.BackendPulseaudio,
	"pulse":      malgo.BackendPulseaudio,
	"coreaudio":  malgo.BackendCoreaudio,
	"wasapi":     malgo.BackendWasapi,
	"null":       malgo.BackendNull,
}

// ParseBackend maps a backend name to the malgo backend list. "auto" and the empty string
// yield nil, letting miniaudio probe in its default order.
func ParseBackend(name string) ([]malgo.Backend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "auto" {
		return nil, nil
	}
	b, ok := backends[name]
	if !ok {
		return nil, errors.New(ErrUnknownBackend).
			Component("engine").
			Category(errors.CategoryConfiguration).
			Context("backend", name).
			Context("os", runtime.GOOS).
			Build()
	}
	return []malgo.Backend{b}, nil
}

// GetLogger returns the miniaudio engine logger.
func GetLogger() logger.Logger {
	return engine.GetLogger().Module("miniaudio")
}

// Engine is a malgo device wrapped as an engine.Engine. Registered input ports become the
// capture channels and output ports the playback channels; registering both opens a
// duplex device.
type Engine struct {
	cfg        Config
	ctx        *malgo.AllocatedContext
	clientName []byte // NUL terminated, referenced by the C context config

	mu      sync.Mutex
	device  *malgo.Device
	inputs  []string
	outputs []string
	bufs    *engine.PortBuffers
	process engine.ProcessFunc
	active  bool
	closed  bool

	handlersMu sync.Mutex
	handlers   []func(string)

	// set while the client itself stops the device so the stop callback stays quiet
	stopping atomic.Bool
}

// New initialises a malgo context for cfg.
func New(cfg Config) (*Engine, error) {
	list, err := ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 512
	}

	e := &Engine{cfg: cfg}
	ctxConfig := malgo.ContextConfig{
		ThreadPriority: malgo.ThreadPriorityRealtime,
	}
	if cfg.ClientName != "" {
		e.clientName = append([]byte(cfg.ClientName), 0)
		ctxConfig.Jack.PClientName = &e.clientName[0]
	}

	log := GetLogger()
	ctx, err := malgo.InitContext(list, ctxConfig, func(message string) {
		log.Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, errors.New(err).
			Component("engine").
			Category(errors.CategoryAudioEngine).
			Context("backend", cfg.Backend).
			Context("operation", "init_context").
			Build()
	}
	e.ctx = ctx
	return e, nil
}

func (e *Engine) Name() string { return e.cfg.ClientName }

// SampleRate returns the device rate once active, the requested rate before that.
func (e *Engine) SampleRate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.device != nil {
		return int(e.device.SampleRate())
	}
	return e.cfg.SampleRate
}

func (e *Engine) BufferSize() int { return e.cfg.BufferSize }

func (e *Engine) RegisterPorts(inputs, outputs []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return engine.ErrClosed
	}
	if e.active {
		return errors.New(engine.ErrActive).
			Component("engine").
			Category(errors.CategoryState).
			Context("operation", "register_ports").
			Build()
	}
	if len(inputs) == 0 && len(outputs) == 0 {
		return errors.New(engine.ErrNoPorts).
			Component("engine").
			Category(errors.CategoryConfiguration).
			Build()
	}
	e.inputs = append([]string(nil), inputs...)
	e.outputs = append([]string(nil), outputs...)
	e.bufs = engine.NewPortBuffers(len(inputs), len(outputs), e.cfg.BufferSize)
	return nil
}

func (e *Engine) SetProcessCallback(fn engine.ProcessFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return errors.New(engine.ErrActive).
			Component("engine").
			Category(errors.CategoryState).
			Context("operation", "set_process_callback").
			Build()
	}
	e.process = fn
	return nil
}

func (e *Engine) OnShutdown(fn func(reason string)) {
	e.handlersMu.Lock()
	e.handlers = append(e.handlers, fn)
	e.handlersMu.Unlock()
}

func (e *Engine) deviceType() malgo.DeviceType {
	switch {
	case len(e.inputs) > 0 && len(e.outputs) > 0:
		return malgo.Duplex
	case len(e.inputs) > 0:
		return malgo.Capture
	default:
		return malgo.Playback
	}
}

func (e *Engine) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.closed:
		return engine.ErrClosed
	case e.active:
		return nil
	case e.process == nil:
		return errors.New(engine.ErrNoProcessCallback).
			Component("engine").
			Category(errors.CategoryState).
			Build()
	case e.bufs == nil:
		return errors.New(engine.ErrNoPorts).
			Component("engine").
			Category(errors.CategoryState).
			Build()
	}

	kind := e.deviceType()
	deviceConfig := malgo.DefaultDeviceConfig(kind)
	deviceConfig.SampleRate = uint32(e.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(e.cfg.BufferSize)
	deviceConfig.PerformanceProfile = malgo.LowLatency
	deviceConfig.NoFixedSizedCallback = 0
	deviceConfig.Alsa.NoMMap = 1

	if len(e.outputs) > 0 {
		deviceConfig.Playback.Format = malgo.FormatF32
		deviceConfig.Playback.Channels = uint32(len(e.outputs))
		id, err := e.lookupDevice(malgo.Playback, e.cfg.PlaybackDevice)
		if err != nil {
			return err
		}
		if id != nil {
			deviceConfig.Playback.DeviceID = id.Pointer()
		}
	}
	if len(e.inputs) > 0 {
		deviceConfig.Capture.Format = malgo.FormatF32
		deviceConfig.Capture.Channels = uint32(len(e.inputs))
		id, err := e.lookupDevice(malgo.Capture, e.cfg.CaptureDevice)
		if err != nil {
			return err
		}
		if id != nil {
			deviceConfig.Capture.DeviceID = id.Pointer()
		}
	}

	cb := &dataCallback{
		process:  e.process,
		bufs:     e.bufs,
		inputs:   len(e.inputs),
		outputs:  len(e.outputs),
		maxChunk: e.cfg.BufferSize,
	}
	device, err := malgo.InitDevice(e.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: cb.onData,
		Stop: e.onStop,
	})
	if err != nil {
		return errors.New(err).
			Component("engine").
			Category(errors.CategoryAudioEngine).
			Context("operation", "init_device").
			Context("device_type", int(kind)).
			StreamContext(max(len(e.inputs), len(e.outputs)), e.cfg.SampleRate).
			Build()
	}

	e.stopping.Store(false)
	if err := device.Start(); err != nil {
		device.Uninit()
		return errors.New(err).
			Component("engine").
			Category(errors.CategoryAudioEngine).
			Context("operation", "start_device").
			Build()
	}

	e.device = device
	e.active = true

	GetLogger().Info("audio device started",
		logger.String("client", e.cfg.ClientName),
		logger.String("backend", e.cfg.Backend),
		logger.Int("sample_rate", int(device.SampleRate())),
		logger.Int("buffer_size", e.cfg.BufferSize),
		logger.Int("inputs", len(e.inputs)),
		logger.Int("outputs", len(e.outputs)))
	return nil
}

// lookupDevice resolves a configured device name or hex id. An empty selector returns nil,
// meaning the backend default.
func (e *Engine) lookupDevice(kind malgo.DeviceType, selector string) (*malgo.DeviceID, error) {
	if selector == "" {
		return nil, nil
	}
	infos, err := e.ctx.Devices(kind)
	if err != nil {
		return nil, errors.New(err).
			Component("engine").
			Category(errors.CategoryAudioEngine).
			Context("operation", "enumerate_devices").
			Build()
	}
	for i := range infos {
		if matchesDevice(&infos[i], selector) {
			id := infos[i].ID
			return &id, nil
		}
	}
	return nil, errors.New(ErrDeviceNotFound).
		Component("engine").
		Category(errors.CategoryNotFound).
		Context("device", selector).
		Context("candidates", len(infos)).
		Build()
}

func matchesDevice(info *malgo.DeviceInfo, selector string) bool {
	if strings.EqualFold(info.ID.String(), selector) {
		return true
	}
	return strings.Contains(strings.ToLower(info.Name()), strings.ToLower(selector))
}

func (e *Engine) onStop() {
	if e.stopping.Load() {
		return
	}
	e.handlersMu.Lock()
	handlers := slices.Clone(e.handlers)
	e.handlersMu.Unlock()

	// leave the audio thread before anything tears the device down
	go func() {
		for _, fn := range handlers {
			fn("audio device stopped")
		}
	}()
}

func (e *Engine) Deactivate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deactivateLocked()
}

func (e *Engine) deactivateLocked() error {
	if e.device == nil {
		e.active = false
		return nil
	}
	e.stopping.Store(true)
	err := e.device.Stop()
	e.device.Uninit()
	e.device = nil
	e.active = false
	if err != nil {
		return errors.New(err).
			Component("engine").
			Category(errors.CategoryAudioEngine).
			Context("operation", "stop_device").
			Build()
	}
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	err := e.deactivateLocked()
	if uninitErr := e.ctx.Uninit(); uninitErr != nil && err == nil {
		err = errors.New(uninitErr).
			Component("engine").
			Category(errors.CategoryAudioEngine).
			Context("operation", "uninit_context").
			Build()
	}
	e.ctx.Free()
	return err
}

// DeviceInfo describes an audio device reported by a backend.
type DeviceInfo struct {
	Kind      string
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// EnumerateDevices lists the playback and capture devices of backend.
func EnumerateDevices(backend string) ([]DeviceInfo, error) {
	list, err := ParseBackend(backend)
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext(list, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("engine").
			Category(errors.CategoryAudioEngine).
			Context("operation", "init_context").
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	var devices []DeviceInfo
	for _, kind := range []struct {
		name string
		typ  malgo.DeviceType
	}{{"playback", malgo.Playback}, {"capture", malgo.Capture}} {
		infos, err := ctx.Devices(kind.typ)
		if err != nil {
			return nil, errors.New(err).
				Component("engine").
				Category(errors.CategoryAudioEngine).
				Context("operation", "enumerate_devices").
				Context("kind", kind.name).
				Build()
		}
		for i := range infos {
			devices = append(devices, DeviceInfo{
				Kind:      kind.name,
				Index:     i,
				Name:      infos[i].Name(),
				ID:        infos[i].ID.String(),
				IsDefault: infos[i].IsDefault != 0,
			})
		}
	}
	return devices, nil
}
