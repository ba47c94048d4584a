package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"

	"github.com/openflow/dictation/internal/events"
	"github.com/openflow/dictation/internal/vad"
)

const (
	// cpuSampleInterval is the governor's sampling cadence.
	cpuSampleInterval = 2 * time.Second

	// slowFinalizeThreshold marks a finalization as slow.
	slowFinalizeThreshold = 2 * time.Second

	// cpuPressureThreshold is the average CPU percentage above which
	// sustained slow finalizations trigger performance mode.
	cpuPressureThreshold = 75.0

	// consecutiveSlowLimit is how many slow finalizations in a row arm
	// performance mode.
	consecutiveSlowLimit = 2
)

// cpuSampler returns cumulative (busy, total) CPU jiffies; deltas between
// calls yield a utilization percentage. Swapped out in tests.
type cpuSampler func() (busy, total float64, err error)

func procfsSampler() cpuSampler {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		slog.Warn("procfs unavailable, CPU governor disabled", "error", err)
		return nil
	}
	return func() (float64, float64, error) {
		stat, err := fs.Stat()
		if err != nil {
			return 0, 0, err
		}
		c := stat.CPUTotal
		busy := c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
		total := busy + c.Idle + c.Iowait
		return busy, total, nil
	}
}

// Governor implements the performance governor: a 2s CPU
// sampler plus a per-finalize latency sampler feeding its Prometheus
// gauges and latency histogram; under sustained pressure it caps the VAD
// hangover at vad.PerformanceModeHangoverCeiling and emits
// performance-warning, recovering when either signal clears.
type Governor struct {
	bus *events.Bus
	vad *vad.Vad

	cpuGauge     prometheus.Gauge
	latencyHist  prometheus.Histogram
	perfModeGauge prometheus.Gauge

	sample cpuSampler

	mu              sync.Mutex
	prevBusy        float64
	prevTotal       float64
	avgCPU          float64
	lastLatency     time.Duration
	consecutiveSlow int
	performanceMode bool
	normalHangover  time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewGovernor wires a governor to the bus and the VAD it governs.
// normalHangover is restored on recovery.
func NewGovernor(bus *events.Bus, v *vad.Vad, normalHangover time.Duration) *Governor {
	reg := prometheus.NewRegistry()
	g := &Governor{
		bus: bus,
		vad: v,
		cpuGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dictation_cpu_percent",
			Help: "Average CPU utilization sampled by the performance governor.",
		}),
		latencyHist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_finalize_latency_seconds",
			Help:    "ASR finalization latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		}),
		perfModeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dictation_performance_mode",
			Help: "1 while performance mode is active.",
		}),
		sample:         procfsSampler(),
		normalHangover: normalHangover,
	}
	reg.MustRegister(g.cpuGauge, g.latencyHist, g.perfModeGauge)
	return g
}

// Start launches the sampling loop.
func (g *Governor) Start() {
	g.stop = make(chan struct{})
	g.done = make(chan struct{})
	go g.loop()
}

// Stop halts the sampling loop.
func (g *Governor) Stop() {
	if g.stop != nil {
		close(g.stop)
		<-g.done
	}
}

func (g *Governor) loop() {
	defer close(g.done)
	ticker := time.NewTicker(cpuSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.sampleCPU()
		}
	}
}

func (g *Governor) sampleCPU() {
	if g.sample == nil {
		return
	}
	busy, total, err := g.sample()
	if err != nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.prevTotal > 0 && total > g.prevTotal {
		g.avgCPU = (busy - g.prevBusy) / (total - g.prevTotal) * 100
		g.cpuGauge.Set(g.avgCPU)
	}
	g.prevBusy, g.prevTotal = busy, total

	if g.performanceMode && g.avgCPU < cpuPressureThreshold {
		g.exitLocked()
	}
}

// RecordFinalize feeds one finalization latency into the governor.
func (g *Governor) RecordFinalize(latency time.Duration) {
	g.latencyHist.Observe(latency.Seconds())

	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastLatency = latency
	defer func() { g.bus.Publish(events.PerformanceMetrics, g.payloadLocked()) }()

	if latency > slowFinalizeThreshold {
		g.consecutiveSlow++
		if !g.performanceMode && g.consecutiveSlow >= consecutiveSlowLimit && g.avgCPU >= cpuPressureThreshold {
			g.enterLocked()
		}
		return
	}

	g.consecutiveSlow = 0
	if g.performanceMode {
		g.exitLocked()
	}
}

// PerformanceMode reports whether performance mode is active.
func (g *Governor) PerformanceMode() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.performanceMode
}

// Metrics returns the current performance payload snapshot.
func (g *Governor) Metrics() events.PerformancePayload {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.payloadLocked()
}

func (g *Governor) payloadLocked() events.PerformancePayload {
	return events.PerformancePayload{
		LastLatencyMs:     g.lastLatency.Milliseconds(),
		AverageCpuPercent: g.avgCPU,
		ConsecutiveSlow:   g.consecutiveSlow,
		PerformanceMode:   g.performanceMode,
	}
}

func (g *Governor) enterLocked() {
	g.performanceMode = true
	g.perfModeGauge.Set(1)
	hangover := g.normalHangover
	if hangover > vad.PerformanceModeHangoverCeiling {
		hangover = vad.PerformanceModeHangoverCeiling
	}
	g.vad.SetHangover(hangover)
	slog.Warn("entering performance mode",
		"lastLatencyMs", g.lastLatency.Milliseconds(), "avgCpu", g.avgCPU)
	g.bus.Publish(events.PerformanceWarning, g.payloadLocked())
}

func (g *Governor) exitLocked() {
	g.performanceMode = false
	g.consecutiveSlow = 0
	g.perfModeGauge.Set(0)
	g.vad.SetHangover(g.normalHangover)
	slog.Info("leaving performance mode", "avgCpu", g.avgCPU)
	g.bus.Publish(events.PerformanceRecovered, g.payloadLocked())
}
