package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-backend-runtime/core"
)

// SnapshotProvider provides current runtime stats snapshots.
type SnapshotProvider interface {
	Stats() core.RuntimeStats
}

// SnapshotPoller periodically exports Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	providersMu sync.RWMutex
	providers   map[string]SnapshotProvider

	runtimeUp       *prom.GaugeVec
	poolQueued      *prom.GaugeVec
	poolActive      *prom.GaugeVec
	poolWorkers     *prom.GaugeVec
	loopOutstanding *prom.GaugeVec
	gateOutstanding *prom.GaugeVec
	gateCapacity    *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "backendruntime"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	runtimeUp := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "up",
		Help:      "Runtime state (1=running, 0=idle or stopped).",
	}, []string{"runtime"})
	poolQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_queued",
		Help:      "Queued callables in the worker pool.",
	}, []string{"runtime"})
	poolActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_active",
		Help:      "Callables currently executing in the worker pool.",
	}, []string{"runtime"})
	poolWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_workers",
		Help:      "Worker count of the pool.",
	}, []string{"runtime"})
	loopOutstanding := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "loop_outstanding",
		Help:      "Unsettled async tasks on the scheduling loop.",
	}, []string{"runtime"})
	gateOutstanding := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "gate_outstanding",
		Help:      "Tokens currently held.",
	}, []string{"runtime"})
	gateCapacity := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "gate_capacity",
		Help:      "Token gate capacity.",
	}, []string{"runtime"})

	var err error
	if runtimeUp, err = registerCollector(reg, runtimeUp); err != nil {
		return nil, err
	}
	if poolQueued, err = registerCollector(reg, poolQueued); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}
	if poolWorkers, err = registerCollector(reg, poolWorkers); err != nil {
		return nil, err
	}
	if loopOutstanding, err = registerCollector(reg, loopOutstanding); err != nil {
		return nil, err
	}
	if gateOutstanding, err = registerCollector(reg, gateOutstanding); err != nil {
		return nil, err
	}
	if gateCapacity, err = registerCollector(reg, gateCapacity); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:        interval,
		providers:       make(map[string]SnapshotProvider),
		runtimeUp:       runtimeUp,
		poolQueued:      poolQueued,
		poolActive:      poolActive,
		poolWorkers:     poolWorkers,
		loopOutstanding: loopOutstanding,
		gateOutstanding: gateOutstanding,
		gateCapacity:    gateCapacity,
	}, nil
}

// AddRuntime adds or replaces a runtime snapshot provider by name.
func (p *SnapshotPoller) AddRuntime(name string, provider SnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "runtime")
	p.providersMu.Lock()
	p.providers[name] = provider
	p.providersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.providersMu.RLock()
	defer p.providersMu.RUnlock()

	for name, provider := range p.providers {
		stats := provider.Stats()

		if stats.State == "running" {
			p.runtimeUp.WithLabelValues(name).Set(1)
		} else {
			p.runtimeUp.WithLabelValues(name).Set(0)
		}
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Pool.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Pool.Active))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Pool.Workers))
		p.loopOutstanding.WithLabelValues(name).Set(float64(stats.Loop.Outstanding))
		p.gateOutstanding.WithLabelValues(name).Set(float64(stats.Gate.Outstanding))
		p.gateCapacity.WithLabelValues(name).Set(float64(stats.Gate.Capacity))
	}
}
