package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/plantdata-gw/internal/analysis"
	"github.com/mattjoyce/plantdata-gw/internal/events"
	"github.com/mattjoyce/plantdata-gw/internal/inspection"
	"github.com/mattjoyce/plantdata-gw/internal/log"
	"github.com/mattjoyce/plantdata-gw/internal/metrics"
)

// defaultHandlerTimeout bounds one event's downstream calls.
const defaultHandlerTimeout = 30 * time.Second

var (
	ErrAlreadyStarted = errors.New("dispatcher already started")
	ErrRunning        = errors.New("dispatcher still running; call Stop before Wait")
)

// Dispatcher consumes inspection events from the bus.
type Dispatcher struct {
	bus       *events.Bus
	records   RecordStore
	resolver  AnalysisResolver
	trigger   WorkflowTrigger
	forwarder TimeseriesForwarder

	logger         *slog.Logger
	metrics        *metrics.Metrics
	handlerTimeout time.Duration
	strict         bool

	mu      sync.Mutex
	started bool
	subs    []*events.Subscription
	cancel  context.CancelFunc

	loops    sync.WaitGroup
	inflight sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics records pipeline counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithHandlerTimeout bounds each handler. Zero or less disables the bound.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.handlerTimeout = timeout }
}

// WithStrictDedupe makes result handling use CreateIfAbsent when the record
// store supports it.
func WithStrictDedupe(enabled bool) Option {
	return func(d *Dispatcher) { d.strict = enabled }
}

// New creates a Dispatcher. It does not subscribe until Start.
func New(bus *events.Bus, records RecordStore, resolver AnalysisResolver, trigger WorkflowTrigger, forwarder TimeseriesForwarder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		bus:            bus,
		records:        records,
		resolver:       resolver,
		trigger:        trigger,
		forwarder:      forwarder,
		logger:         log.WithComponent("dispatch"),
		handlerTimeout: defaultHandlerTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.strict {
		if _, ok := records.(AtomicRecordStore); !ok {
			d.logger.Warn("strict dedupe requested but record store has no atomic create; using exists/create")
			d.strict = false
		}
	}
	return d
}

// Start claims the result and value topics and begins handling events. The
// subscriptions are released by Stop or when ctx ends.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return ErrAlreadyStarted
	}

	results, err := d.bus.SubscribeExclusive(inspection.TopicResult)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", inspection.TopicResult, err)
	}
	values, err := d.bus.SubscribeExclusive(inspection.TopicValue)
	if err != nil {
		results.Unsubscribe()
		return fmt.Errorf("subscribe %s: %w", inspection.TopicValue, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.started = true
	d.cancel = cancel
	d.subs = []*events.Subscription{results, values}

	d.loops.Add(2)
	go d.loop(loopCtx, results, metrics.KindResult, d.handleResultEvent)
	go d.loop(loopCtx, values, metrics.KindValue, d.handleValueEvent)

	d.logger.Info("dispatcher started", "topics", []string{inspection.TopicResult, inspection.TopicValue}, "strict_dedupe", d.strict)
	return nil
}

// Stop releases both subscriptions and waits for the subscription loops to
// exit. In-flight handlers keep running; use Wait to give them time to
// finish. Stop is idempotent.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.cancel == nil {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.cancel = nil
	subs := d.subs
	d.subs = nil
	d.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	d.loops.Wait()
	d.logger.Info("dispatcher stopped")
}

// Wait blocks until in-flight handlers finish or ctx ends. It returns
// ErrRunning between Start and Stop, while the loops may still spawn handlers.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	running := d.cancel != nil
	d.mu.Unlock()
	if running {
		return ErrRunning
	}

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) loop(ctx context.Context, sub *events.Subscription, kind string, handle func(context.Context, events.Event)) {
	defer d.loops.Done()
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case ev := <-sub.C:
			d.spawn(ctx, kind, ev, handle)
		}
	}
}

// spawn runs handle in its own goroutine. The handler context survives
// cancellation of the subscription loop.
func (d *Dispatcher) spawn(parent context.Context, kind string, ev events.Event, handle func(context.Context, events.Event)) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				d.metrics.Failure(metrics.StagePanic)
				d.logger.Error("event handler panicked", "kind", kind, "topic", ev.Topic, "event_id", ev.ID, "panic", fmt.Sprint(r))
			}
		}()

		ctx := context.WithoutCancel(parent)
		if d.handlerTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.handlerTimeout)
			defer cancel()
		}
		handle(ctx, ev)
	}()
}

func (d *Dispatcher) handleResultEvent(ctx context.Context, ev events.Event) {
	res, err := inspection.DecodeResult(ev.Data)
	if err != nil {
		d.metrics.Failure(metrics.StageDecode)
		d.logger.Error("dropping malformed inspection result", "event_id", ev.ID, "error", err)
		return
	}
	d.HandleInspectionResult(ctx, res)
}

func (d *Dispatcher) handleValueEvent(ctx context.Context, ev events.Event) {
	val, err := inspection.DecodeValue(ev.Data)
	if err != nil {
		d.metrics.Failure(metrics.StageDecode)
		d.logger.Error("dropping malformed inspection value", "event_id", ev.ID, "error", err)
		return
	}
	d.HandleInspectionValue(ctx, val)
}

// HandleInspectionResult records an unseen inspection and triggers its
// analysis workflow. Failures are logged, never returned.
func (d *Dispatcher) HandleInspectionResult(ctx context.Context, ev inspection.ResultEvent) {
	defer d.metrics.ObserveHandler(metrics.KindResult, time.Now())
	d.metrics.ResultReceived()
	logger := log.WithInspection(d.logger, ev.InspectionID)

	rec, ok := d.createRecord(ctx, logger, ev)
	if !ok {
		return
	}

	analyses := d.resolver.Resolve(ev.TagID, ev.Description)
	runConstantLevelOiler := analyses.Contains(analysis.ConstantLevelOiler)

	if err := d.trigger.TriggerAnalysis(ctx, rec, runConstantLevelOiler); err != nil {
		d.metrics.Failure(metrics.StageTrigger)
		logger.Error("failed to trigger analysis workflow", "record_id", rec.ID, "error", err)
		return
	}
	d.metrics.WorkflowTriggered(runConstantLevelOiler)
	logger.Info("analysis workflow triggered",
		"record_id", rec.ID,
		"tag_id", ev.TagID,
		"analyses", analyses.Strings(),
		"constant_level_oiler", runConstantLevelOiler,
	)
}

// createRecord returns the new record, or false when the event is a
// duplicate or the store failed.
func (d *Dispatcher) createRecord(ctx context.Context, logger *slog.Logger, ev inspection.ResultEvent) (*inspection.Record, bool) {
	if d.strict {
		rec, created, err := d.records.(AtomicRecordStore).CreateIfAbsent(ctx, ev)
		if err != nil {
			d.metrics.Failure(metrics.StageCreate)
			logger.Error("failed to create inspection record", "error", err)
			return nil, false
		}
		if !created {
			d.metrics.DuplicateSuppressed()
			logger.Warn("inspection already recorded, skipping duplicate result")
			return nil, false
		}
		d.metrics.RecordCreated()
		return rec, true
	}

	exists, err := d.records.Exists(ctx, ev.InspectionID)
	if err != nil {
		d.metrics.Failure(metrics.StageExists)
		logger.Error("failed to check inspection record", "error", err)
		return nil, false
	}
	if exists {
		d.metrics.DuplicateSuppressed()
		logger.Warn("inspection already recorded, skipping duplicate result")
		return nil, false
	}

	rec, err := d.records.Create(ctx, ev)
	if err != nil {
		d.metrics.Failure(metrics.StageCreate)
		logger.Error("failed to create inspection record", "error", err)
		return nil, false
	}
	d.metrics.RecordCreated()
	return rec, true
}

// HandleInspectionValue forwards ev to the time-series store. Failures are
// logged, never returned.
func (d *Dispatcher) HandleInspectionValue(ctx context.Context, ev inspection.ValueEvent) {
	defer d.metrics.ObserveHandler(metrics.KindValue, time.Now())
	logger := log.WithInspection(d.logger, ev.InspectionID)

	if err := d.forwarder.Forward(ctx, ev); err != nil {
		d.metrics.Failure(metrics.StageForward)
		logger.Error("failed to forward inspection values", "values", len(ev.Values), "error", err)
		return
	}
	d.metrics.ValueForwarded()
	logger.Debug("inspection values forwarded", "values", len(ev.Values))
}
