package bridge

import (
	"context"
	"log"
	"sync"
	"time"

	"aprsbridge/traccar"
)

const registryTimeout = 30 * time.Second

// DefaultPollInterval is the registry poll cadence when the configuration
// doesn't set one.
const DefaultPollInterval = 60 * time.Second

// deviceLister is the slice of traccar.Registry the reconciler needs.
type deviceLister interface {
	Devices(ctx context.Context) ([]traccar.Device, error)
}

// ListenerHandle is the lifecycle surface the reconciler drives. *Listener
// implements it; tests substitute counting fakes.
type ListenerHandle interface {
	Start() error
	SetFilter(FilterMap) error
	Stop()
	IsRunning() bool
}

// Reconciler polls the device registry and keeps the listener's
// subscription set in step with it: it starts a listener when stations
// appear, pushes filter updates when the mapping changes, stops the
// listener when the registry empties, and restarts after a feed disconnect.
// All transitions happen on the single poll goroutine, so ticks never
// overlap.
type Reconciler struct {
	registry deviceLister
	keyword  string
	interval time.Duration
	factory  func(FilterMap) ListenerHandle

	listener ListenerHandle
	last     FilterMap

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReconciler creates a reconciler. The factory builds a stopped listener
// for a filter map; the reconciler owns every handle it creates.
func NewReconciler(registry deviceLister, keyword string, interval time.Duration, factory func(FilterMap) ListenerHandle) *Reconciler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Reconciler{
		registry: registry,
		keyword:  keyword,
		interval: interval,
		factory:  factory,
		stop:     make(chan struct{}),
	}
}

// Start launches the poll loop: one immediate tick, then the fixed interval.
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop ends the poll loop and stops any running listener.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	r.wg.Wait()
	if r.listener != nil {
		r.listener.Stop()
		r.listener = nil
	}
}

func (r *Reconciler) run() {
	defer r.wg.Done()
	r.tick()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// tick performs one reconciliation pass. A registry failure skips the pass
// entirely: no transition, and the last map is kept so the next successful
// poll compares against real state.
func (r *Reconciler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	devices, err := r.registry.Devices(ctx)
	cancel()
	if err != nil {
		log.Printf("Reconciler: device registry poll failed: %v", err)
		return
	}

	fm := DeriveFilterMap(devices, r.keyword)
	alive := r.listener != nil && r.listener.IsRunning()

	switch {
	case !alive && len(fm) > 0:
		if r.listener != nil {
			// The previous connection died between ticks.
			r.listener.Stop()
			r.listener = nil
		}
		handle := r.factory(fm)
		if err := handle.Start(); err != nil {
			log.Printf("Reconciler: listener start failed: %v", err)
		} else {
			r.listener = handle
			log.Printf("Reconciler: listener started (%s)", fm)
		}
	case alive && len(fm) == 0:
		log.Printf("Reconciler: no stations mapped, stopping listener")
		r.listener.Stop()
		r.listener = nil
	case alive && !fm.Equal(r.last):
		if err := r.listener.SetFilter(fm); err != nil {
			log.Printf("Reconciler: filter update failed: %v", err)
		}
	}

	r.last = fm
}
