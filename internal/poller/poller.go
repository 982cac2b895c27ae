package poller

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"sessiond/internal/instrument"
	"sessiond/internal/logging"
)

// maxSilentErrors controls poll-failure log rate limiting: the first failure
// logs, then every Nth consecutive one after that.
const maxSilentErrors = 5

// StatusSource supplies instrument status reads. Satisfied by
// *instrument.Client; tests inject stubs.
type StatusSource interface {
	Connect(ctx context.Context) error
	Query(ctx context.Context) (instrument.Status, error)
}

// Snapshot is the outcome of a single poll, passed to edge handlers.
type Snapshot struct {
	Indicator Indicator
	Stream    string
	BaseName  string
	Path      string
	Connected bool
	Err       error
	PolledAt  time.Time
}

// Handler receives the snapshot that fired an edge.
type Handler func(Snapshot)

// Poller polls a status source and fires session start/end handlers on
// Off->On and On->Off transitions.
type Poller struct {
	source  StatusSource
	logger  *slog.Logger
	onStart Handler
	onEnd   Handler

	mu                sync.Mutex
	previous          Indicator
	connected         bool
	consecutiveErrors int
}

// New constructs a poller. Either handler may be nil.
func New(source StatusSource, logger *slog.Logger, onStart, onEnd Handler) *Poller {
	return &Poller{
		source:   source,
		logger:   logging.NewComponentLogger(logger, "poller"),
		onStart:  onStart,
		onEnd:    onEnd,
		previous: IndicatorUnknown,
	}
}

// Connect establishes the status source connection. Failure is reported, not
// fatal; the daemon retries on subsequent ticks.
func (p *Poller) Connect(ctx context.Context) error {
	err := p.source.Connect(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.connected = false
		p.logger.Warn("instrument connect failed", logging.Error(err))
		return err
	}
	p.connected = true
	p.consecutiveErrors = 0
	p.logger.Info("connected to instrument")
	return nil
}

// Poll queries the status source once, fires any edge handler synchronously,
// and returns the snapshot. A failed query leaves the remembered indicator
// untouched.
func (p *Poller) Poll(ctx context.Context) Snapshot {
	status, err := p.source.Query(ctx)
	now := time.Now()

	if err != nil {
		p.mu.Lock()
		p.connected = false
		p.consecutiveErrors++
		count := p.consecutiveErrors
		p.mu.Unlock()

		if count == 1 || count%maxSilentErrors == 0 {
			p.logger.Warn("instrument poll failed",
				logging.Int("consecutive", count),
				logging.Error(err),
			)
		}
		return Snapshot{Indicator: IndicatorUnknown, Connected: false, Err: err, PolledAt: now}
	}

	current := classify(status.Recording)
	if current == IndicatorUnknown {
		p.logger.Warn("unexpected recording indicator", logging.String("raw", status.Recording))
	}

	snapshot := Snapshot{
		Indicator: current,
		Stream:    status.Stream,
		BaseName:  status.BaseName,
		Path:      status.Path,
		Connected: true,
		PolledAt:  now,
	}

	p.mu.Lock()
	p.connected = true
	p.consecutiveErrors = 0
	previous := p.previous
	p.previous = current
	p.mu.Unlock()

	if previous == IndicatorUnknown && current != IndicatorUnknown {
		p.logger.Info("initial instrument state", logging.String("indicator", string(current)))
	}

	switch transition(previous, current) {
	case EdgeStart:
		p.logger.Info("recording started",
			logging.String(logging.FieldEventType, "session_start"),
			logging.String("base_name", snapshot.BaseName),
		)
		if p.onStart != nil {
			p.onStart(snapshot)
		}
	case EdgeEnd:
		p.logger.Info("recording stopped",
			logging.String(logging.FieldEventType, "session_end"),
		)
		if p.onEnd != nil {
			p.onEnd(snapshot)
		}
	}

	return snapshot
}

// Connected reports whether the last poll (or connect) succeeded.
func (p *Poller) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// LastIndicator returns the last successfully observed indicator.
func (p *Poller) LastIndicator() Indicator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.previous
}
