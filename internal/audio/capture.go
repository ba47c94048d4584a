package audio

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	apperrors "github.com/openflow/dictation/internal/errors"
)

// frameSamples is the number of samples in one ~20ms AudioFrame at 16kHz.
const frameSamples = TargetSampleRate * int(FrameDuration/time.Millisecond) / 1000

// AudioFrame is an immutable ~20ms mono frame at the negotiated sample
// rate. Dropped silently on backpressure.
type AudioFrame struct {
	Samples    []float32
	SampleRate int
	Timestamp  time.Time
}

// Event is what Subscribe delivers: either a Frame or a Stopped signal.
type Event struct {
	Frame   *AudioFrame
	Stopped bool
}

// Capture owns one input device (real or synthetic) and fans frames out to
// bounded subscriber channels.
type Capture struct {
	ctx        *malgo.AllocatedContext
	deviceID   string
	sampleRate uint32
	synthetic  atomic.Bool

	mu          sync.Mutex
	device      *malgo.Device
	subscribers []chan Event
	accum       []float32
	closed      bool

	lastIngress atomic.Int64 // unix nano of last real frame
	restarting  atomic.Bool
	backoff     time.Duration
	stopWatch   chan struct{}
}

// Config selects the preferred device.
type Config struct {
	// DeviceID, if non-empty, is matched by name against enumerated
	// capture devices; otherwise the default input device is used.
	DeviceID string
}

// Spawn opens the preferred input host (ALSA before JACK, to keep JACK's
// connection noise out of the logs) and starts capturing, falling back to
// a synthetic source if hardware init fails.
func Spawn(cfg Config) (*Capture, error) {
	backends := []malgo.Backend{malgo.BackendAlsa, malgo.BackendJack}
	mctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, nil)

	c := &Capture{
		sampleRate: TargetSampleRate,
		stopWatch:  make(chan struct{}),
		backoff:    RestartBackoffBase,
	}
	c.lastIngress.Store(time.Now().UnixNano())

	if err != nil {
		slog.Warn("audio context init failed, falling back to synthetic source", "error", err)
		if serr := c.startSynthetic(); serr != nil {
			return nil, apperrors.Wrap(serr, apperrors.CaptureUnavailable, "synthetic fallback failed to start")
		}
		go c.watchdog()
		return c, nil
	}
	c.ctx = mctx

	if err := c.startDevice(cfg); err != nil {
		slog.Warn("audio device init failed, falling back to synthetic source", "error", err)
		if serr := c.startSynthetic(); serr != nil {
			return nil, apperrors.Wrap(serr, apperrors.CaptureUnavailable, "synthetic fallback failed to start")
		}
	}

	go c.watchdog()
	return c, nil
}

// SpawnSynthetic starts a capture on the synthetic source directly,
// bypassing hardware entirely. Used in test mode and by package tests that
// need a deterministic 16kHz source.
func SpawnSynthetic() (*Capture, error) {
	c := &Capture{
		sampleRate: TargetSampleRate,
		stopWatch:  make(chan struct{}),
		backoff:    RestartBackoffBase,
	}
	c.lastIngress.Store(time.Now().UnixNano())
	if err := c.startSynthetic(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureUnavailable, "synthetic source failed to start")
	}
	return c, nil
}

// SampleRate returns the negotiated sample rate.
func (c *Capture) SampleRate() int { return int(c.sampleRate) }

// DeviceID returns the selected device's id/name.
func (c *Capture) DeviceID() string { return c.deviceID }

// IsSynthetic reports whether capture is currently running the synthetic
// fallback source.
func (c *Capture) IsSynthetic() bool { return c.synthetic.Load() }

// Subscribe returns a bounded channel of frames.
func (c *Capture) Subscribe() <-chan Event {
	ch := make(chan Event, SubscriberBufferSize)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

func (c *Capture) fanOut(ev Event) {
	c.mu.Lock()
	subs := c.subscribers
	c.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("audio subscriber channel full, dropping frame")
		}
	}
}

// Stop tears down the device (or synthetic generator) and notifies
// subscribers.
func (c *Capture) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	dev := c.device
	c.device = nil
	c.mu.Unlock()

	close(c.stopWatch)
	if dev != nil {
		if dev.IsStarted() {
			_ = dev.Stop()
		}
		dev.Uninit()
	}
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
	}
	c.fanOut(Event{Stopped: true})
}

// RestartCapture attempts to reopen the input device, used by the watchdog
// and exposed for manual recovery.
func (c *Capture) RestartCapture() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	dev := c.device
	c.device = nil
	c.mu.Unlock()

	if dev != nil {
		if dev.IsStarted() {
			_ = dev.Stop()
		}
		dev.Uninit()
	}

	if c.ctx == nil {
		return c.startSynthetic() == nil
	}
	if err := c.startDevice(Config{DeviceID: c.deviceID}); err != nil {
		slog.Warn("capture restart failed, using synthetic source", "error", err)
		return c.startSynthetic() == nil
	}
	c.lastIngress.Store(time.Now().UnixNano())
	return true
}

// watchdog polls the ingress timestamp and restarts a stalled device. The
// first restart fires as soon as the stall is detected; further attempts
// are spaced by an exponential backoff that doubles from
// RestartBackoffBase up to RestartBackoffMax and rewinds once real frames
// flow again. c.backoff is owned by this goroutine after Spawn.
func (c *Capture) watchdog() {
	ticker := time.NewTicker(WatchdogInterval)
	defer ticker.Stop()
	var nextRestart time.Time
	for {
		select {
		case <-c.stopWatch:
			return
		case <-ticker.C:
			if c.IsSynthetic() {
				continue
			}
			last := time.Unix(0, c.lastIngress.Load())
			if time.Since(last) < StallTimeout {
				c.backoff = RestartBackoffBase
				nextRestart = time.Time{}
				continue
			}
			now := time.Now()
			if !nextRestart.IsZero() && now.Before(nextRestart) {
				continue
			}
			if !c.restarting.CompareAndSwap(false, true) {
				continue
			}
			slog.Warn("audio ingress stalled, restarting capture", "next_retry_in", c.backoff)
			nextRestart = now.Add(c.backoff)
			c.backoff = min(c.backoff*2, RestartBackoffMax)
			go func() {
				defer c.restarting.Store(false)
				c.RestartCapture()
			}()
		}
	}
}

func (c *Capture) startDevice(cfg Config) error {
	devices, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return err
	}
	chosen, ok := selectDevice(devices, cfg.DeviceID)
	if !ok {
		return apperrors.New(apperrors.DeviceUnavailable, "no capture device available")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = c.sampleRate
	deviceConfig.Capture.DeviceID = chosen.ID.Pointer()

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pSamples []byte, _ uint32) {
			samples := bytesToFloat32(pSamples)
			if len(samples) == 0 {
				return
			}
			c.lastIngress.Store(time.Now().UnixNano())
			c.ingest(samples)
		},
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return err
	}

	c.mu.Lock()
	c.device = device
	c.deviceID = chosen.Name()
	c.mu.Unlock()
	c.synthetic.Store(false)
	return nil
}

func selectDevice(devices []malgo.DeviceInfo, wantID string) (malgo.DeviceInfo, bool) {
	if wantID != "" {
		for _, d := range devices {
			if d.Name() == wantID {
				return d, true
			}
		}
	}
	if len(devices) == 0 {
		return malgo.DeviceInfo{}, false
	}
	return devices[0], true
}

// ingest groups raw samples into 20ms frames and fans them out. Only the
// frame worker (not the audio callback) does anything blocking with the
// resulting event; the callback itself never blocks.
func (c *Capture) ingest(samples []float32) {
	c.mu.Lock()
	c.accum = append(c.accum, samples...)
	var frames [][]float32
	for len(c.accum) >= frameSamples {
		frames = append(frames, append([]float32(nil), c.accum[:frameSamples]...))
		c.accum = c.accum[frameSamples:]
	}
	c.mu.Unlock()

	now := time.Now()
	for _, f := range frames {
		c.fanOut(Event{Frame: &AudioFrame{Samples: f, SampleRate: int(c.sampleRate), Timestamp: now}})
	}
}

func bytesToFloat32(b []byte) []float32 {
	const sz = 4
	if len(b)%sz != 0 {
		return nil
	}
	out := make([]float32, len(b)/sz)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[i*sz:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// startSynthetic implements the silence-shaped synthetic fallback source.
const synthFrequencyHz = 220.0

func (c *Capture) startSynthetic() error {
	c.synthetic.Store(true)
	c.deviceID = "synthetic"
	stop := make(chan struct{})
	c.mu.Lock()
	c.device = nil
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(FrameDuration)
		defer ticker.Stop()
		phase := 0.0
		step := 2 * math.Pi * synthFrequencyHz / float64(c.sampleRate)
		for {
			select {
			case <-stop:
				return
			case <-c.stopWatch:
				return
			case t := <-ticker.C:
				samples := make([]float32, frameSamples)
				const amplitude = 0.0005 // silence-shaped: near-inaudible
				for i := range samples {
					samples[i] = float32(amplitude * math.Sin(phase))
					phase += step
				}
				c.fanOut(Event{Frame: &AudioFrame{Samples: samples, SampleRate: int(c.sampleRate), Timestamp: t}})
			}
		}
	}()
	return nil
}

// FrameWorker runs preprocessor -> onFrame for every frame delivered on ch,
// until the context is canceled or a Stopped event arrives. It is the only
// writer to whatever sink onFrame represents.
func FrameWorker(ctx context.Context, ch <-chan Event, onFrame func(*AudioFrame)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok || ev.Stopped {
				return
			}
			if ev.Frame == nil {
				continue
			}
			Preprocess(ev.Frame)
			onFrame(ev.Frame)
		}
	}
}
