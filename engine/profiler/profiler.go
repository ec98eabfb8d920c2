package profiler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Profiler records import and export metrics and logs a runtime summary at a configurable interval.
// A nil *Profiler is valid and records nothing.
type Profiler struct {
	mu             sync.Mutex
	opCount        int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	namespace  string
	registerer prometheus.Registerer

	importsTotal   *prometheus.CounterVec
	importDuration *prometheus.HistogramVec
	exportsTotal   *prometheus.CounterVec
	cacheHits      prometheus.Counter

	logger *zap.Logger
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 10 seconds. Collectors are registered on the registerer given with
// WithRegisterer, or left unregistered.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: 10 * time.Second,
		namespace:      "oxypipe",
		logger:         zap.NewNop(),
	}
	for _, opt := range options {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "profiler"))

	factory := promauto.With(p.registerer)
	p.importsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "imports_total",
			Help:      "Total number of imported results by kind and status",
		},
		[]string{"kind", "status"},
	)
	p.importDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      "import_duration_seconds",
			Help:      "Duration of single file loads in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"loader"},
	)
	p.exportsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "exports_total",
			Help:      "Total number of exports by extension and status",
		},
		[]string{"ext", "status"},
	)
	p.cacheHits = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "import_cache_hits_total",
			Help:      "Imports served from the in-memory asset cache",
		},
	)
	return p
}

// ObserveImport records one imported result, or a failed load when kind is empty.
//
// Parameters:
//   - kind: the result kind, empty for a failed load
//   - status: "ok" or "error"
func (p *Profiler) ObserveImport(kind, status string) {
	if p == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	p.importsTotal.WithLabelValues(kind, status).Inc()
	p.countOp()
}

// ObserveLoad records the duration of one file load.
//
// Parameters:
//   - loader: the name of the importer registration that loaded the file
//   - d: the load duration
func (p *Profiler) ObserveLoad(loader string, d time.Duration) {
	if p == nil {
		return
	}
	p.importDuration.WithLabelValues(loader).Observe(d.Seconds())
}

// ObserveExport records one export.
//
// Parameters:
//   - ext: the exported extension
//   - status: "ok" or "error"
func (p *Profiler) ObserveExport(ext, status string) {
	if p == nil {
		return
	}
	p.exportsTotal.WithLabelValues(ext, status).Inc()
	p.countOp()
}

// ObserveCacheHit records an import answered from the asset cache.
func (p *Profiler) ObserveCacheHit() {
	if p == nil {
		return
	}
	p.cacheHits.Inc()
}

func (p *Profiler) countOp() {
	p.mu.Lock()
	p.opCount++
	p.mu.Unlock()
}

// Tick logs the runtime summary when the update interval has elapsed.
// Statistics include: operation rate, heap usage, allocation rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	opsPerSec := float64(p.opCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	// Alloc: Bytes of allocated heap objects (live memory)
	// TotalAlloc: Cumulative bytes allocated for heap objects (increases forever, tracks churn)
	// Sys: Total bytes of memory obtained from the OS (actual process footprint)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of last 256 GC pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			pause := p.memStats.PauseNs[i%256] / 1000
			if pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	p.logger.Info("runtime summary",
		zap.Float64("ops_per_sec", opsPerSec),
		zap.Float64("heap_mb", allocMB),
		zap.Float64("alloc_rate_mb_per_sec", allocRateMB),
		zap.Uint32("gc_count", gcCount),
		zap.Uint64("gc_last_pause_us", lastPauseUs),
		zap.Uint64("gc_max_pause_us", maxPauseUs),
		zap.Float64("sys_mb", sysMB),
	)

	p.opCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Run calls Tick every update interval until ctx is done.
//
// Parameters:
//   - ctx: the context that stops the loop
func (p *Profiler) Run(ctx context.Context) {
	if p == nil {
		return
	}
	ticker := time.NewTicker(p.updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}
