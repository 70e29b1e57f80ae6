// Package aggregator implements C5: the single periodic task that turns the
// Store's active-user snapshot into at most one Effect per tick. Grounded on
// the teacher's internal/hub.Hub for its Start/Stop/context-cancellation
// shape (one goroutine, a shutdown channel, ctx.Done as the other exit) and
// on internal/router.Router's persist-then-route ordering, applied here as
// persist-then-broadcast.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"audiencehub/internal/metricsx"
	"audiencehub/pkg/interfaces"
	"audiencehub/pkg/types"
)

// tickInterval is the fixed cadence of the priority ladder.
const tickInterval = 1000 * time.Millisecond

// rank is one row of the priority ladder, evaluated top-down; the first
// predicate that holds wins and the loop stops.
type rank struct {
	effectType string
	predicate  func(ratioState, densityEvent map[string]float64) bool
	intensity  func(ratioState, densityEvent map[string]float64) float64
}

// ladder encodes §4.5's ten-row priority table in listed order.
var ladder = []rank{
	{
		effectType: types.EffectCheer,
		predicate:  func(rs, _ map[string]float64) bool { return rs[types.StateIsHandUp] >= 0.30 },
		intensity:  func(rs, _ map[string]float64) float64 { return rs[types.StateIsHandUp] },
	},
	{
		effectType: types.EffectExcitement,
		predicate:  func(rs, _ map[string]float64) bool { return rs[types.StateIsSurprised] >= 0.30 },
		intensity:  func(rs, _ map[string]float64) float64 { return rs[types.StateIsSurprised] },
	},
	{
		effectType: types.EffectClappingIcons,
		predicate:  func(_, de map[string]float64) bool { return de[types.EventClap] >= 0.15 },
		intensity:  func(_, de map[string]float64) float64 { return minF(1.0, de[types.EventClap]/0.8) },
	},
	{
		effectType: types.EffectBounce,
		predicate:  func(_, de map[string]float64) bool { return de[types.EventSwayVertical] >= 0.20 },
		intensity:  func(_, de map[string]float64) float64 { return de[types.EventSwayVertical] },
	},
	{
		effectType: types.EffectShimmer,
		predicate:  func(_, de map[string]float64) bool { return de[types.EventShakeHead] >= 0.20 },
		intensity:  func(_, de map[string]float64) float64 { return de[types.EventShakeHead] },
	},
	{
		effectType: types.EffectGroove,
		predicate:  func(_, de map[string]float64) bool { return de[types.EventSwayHorizontal] >= 0.20 },
		intensity:  func(_, de map[string]float64) float64 { return de[types.EventSwayHorizontal] },
	},
	{
		effectType: types.EffectWave,
		predicate:  func(_, de map[string]float64) bool { return de[types.EventCheer] >= 0.15 },
		intensity:  func(_, de map[string]float64) float64 { return minF(1.0, de[types.EventCheer]/0.8) },
	},
	{
		effectType: types.EffectWave,
		predicate:  func(_, de map[string]float64) bool { return de[types.EventNod] >= 0.30 },
		intensity:  func(_, de map[string]float64) float64 { return minF(1.0, de[types.EventNod]/0.5) },
	},
	{
		effectType: types.EffectSparkle,
		predicate:  func(rs, _ map[string]float64) bool { return rs[types.StateIsSmiling] >= 0.35 },
		intensity:  func(rs, _ map[string]float64) float64 { return rs[types.StateIsSmiling] },
	},
	{
		effectType: types.EffectFocus,
		predicate:  func(rs, _ map[string]float64) bool { return rs[types.StateIsConcentrating] >= 0.40 },
		intensity:  func(rs, _ map[string]float64) float64 { return rs[types.StateIsConcentrating] },
	},
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Aggregator runs the priority ladder once per tickInterval. One instance
// per process; Start is serialized by a mutex and a second Start while
// running returns an error.
type Aggregator struct {
	store       interfaces.Store
	hub         interfaces.Hub
	persistence interfaces.Persistence

	logger  zerolog.Logger
	metrics *metricsx.Registry

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs an Aggregator. The caller must call Start to begin ticking.
func New(store interfaces.Store, hub interfaces.Hub, persistence interfaces.Persistence, logger zerolog.Logger, metrics *metricsx.Registry) *Aggregator {
	return &Aggregator{
		store:       store,
		hub:         hub,
		persistence: persistence,
		logger:      logger,
		metrics:     metrics,
	}
}

// Start launches the tick goroutine. Returns an error if already running.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("aggregator: already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true

	go a.run(runCtx)

	return nil
}

// Stop cancels the tick goroutine and waits for it to exit.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancel
	done := a.done
	a.mu.Unlock()

	cancel()
	<-done
}

func (a *Aggregator) run(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			seq++
			a.runTickSafely(seq, now.UnixMilli())
		}
	}
}

// runTickSafely wraps tick in a panic recovery so a single faulty tick never
// takes the aggregator down; the next tick still fires normally.
func (a *Aggregator) runTickSafely(seq uint64, nowMS int64) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Uint64("tick_seq", seq).Msg("aggregator tick panicked, recovering")
		}
	}()

	start := time.Now()
	a.tick(nowMS)
	elapsed := time.Since(start)

	if a.metrics != nil {
		a.metrics.AggregatorTickDuration.Observe(elapsed.Seconds())
	}
	if elapsed > tickInterval {
		a.logger.Warn().Dur("elapsed", elapsed).Uint64("tick_seq", seq).Msg("aggregator tick exceeded its budget")
	}
}

// tick runs one IDLE→COMPUTE→EMITTED cycle. At most one effect is emitted.
func (a *Aggregator) tick(nowMS int64) {
	active := a.store.SnapshotActive(nowMS)
	if len(active) == 0 {
		return
	}

	ratioState := computeRatioState(active)
	densityEvent := computeDensityEvent(active)

	for _, r := range ladder {
		if !r.predicate(ratioState, densityEvent) {
			continue
		}

		effect := types.Effect{
			EffectType:   r.effectType,
			Intensity:    types.ClampIntensity(r.intensity(ratioState, densityEvent)),
			DurationMS:   types.DefaultEffectDurationMS,
			ServerSendMS: nowMS,
			ActiveUsers:  len(active),
			Debug: &types.EffectDebug{
				ActiveUsers:  len(active),
				RatioState:   ratioState,
				DensityEvent: densityEvent,
			},
		}

		a.emit(effect)
		return
	}
}

func (a *Aggregator) emit(effect types.Effect) {
	ctx := context.Background()
	if err := a.persistence.LogEffect(ctx, effect); err != nil {
		a.logger.Error().Err(err).Str("effect_type", effect.EffectType).Msg("log_effect failed")
	}

	a.hub.Broadcast(types.NewEffectFrame(effect))

	if a.metrics != nil {
		a.metrics.AggregatorEffectsEmitted.WithLabelValues(effect.EffectType).Inc()
	}
}

// computeRatioState implements §4.5 step 3: the fraction of active users who
// carried the state true in at least one of their window's samples.
func computeRatioState(active map[string][]types.Sample) map[string]float64 {
	total := float64(len(active))
	ratios := make(map[string]float64, len(types.StateNames))

	for _, state := range types.StateNames {
		count := 0
		for _, samples := range active {
			for _, s := range samples {
				if s.HasState(state) {
					count++
					break
				}
			}
		}
		ratios[state] = float64(count) / total
	}

	return ratios
}

// computeDensityEvent implements §4.5 step 4: events per user per second,
// averaged across the window length.
func computeDensityEvent(active map[string][]types.Sample) map[string]float64 {
	userCount := float64(len(active))
	densities := make(map[string]float64, len(types.EventNames))

	for _, event := range types.EventNames {
		sum := 0
		for _, samples := range active {
			for _, s := range samples {
				sum += s.EventCount(event)
			}
		}
		densities[event] = float64(sum) / (userCount * float64(types.WindowSize))
	}

	return densities
}
