// Package resolver walks an article URL through reader, aggregator and
// archive services until a readable rendering is found.
//
// Each attempt is a single consumer draining one event queue. Navigation
// completions, probe and link-search results, and the deadline timer are all
// producers on that queue, so state is never touched concurrently.
package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"NewYorkCrimes/internal/domain"
	"NewYorkCrimes/internal/hosts"
	"NewYorkCrimes/internal/ports"
)

const (
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 8 * time.Second
	eventBuffer    = 16
)

// EngineDeps wires the collaborators of the resolution engine.
type EngineDeps struct {
	Rules   *hosts.Rules
	Probe   ports.BlockProbe
	Options Options
	Timeout time.Duration
	Logger  *slog.Logger
}

// Engine starts resolution attempts against browser pages.
type Engine struct {
	rules   *hosts.Rules
	machine Machine
	probe   ports.BlockProbe
	timeout time.Duration
	logger  *slog.Logger
}

// NewEngine builds an engine; zero timeout means DefaultTimeout.
func NewEngine(deps EngineDeps) *Engine {
	rules := deps.Rules
	if rules == nil {
		rules = hosts.Default()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		rules:   rules,
		machine: NewMachine(rules, deps.Options),
		probe:   deps.Probe,
		timeout: timeout,
		logger:  deps.Logger,
	}
}

// Outcome describes how an attempt ended.
type Outcome struct {
	ID        string
	Original  string
	URL       string
	Stage     domain.Stage
	Resolved  bool
	Fallback  bool
	Trail     []string
	StartedAt time.Time
	Duration  time.Duration
}

// Resolution converts a finished outcome into the domain record.
func (o Outcome) Resolution() domain.Resolution {
	return domain.Resolution{
		ID:        o.ID,
		Original:  o.Original,
		Resolved:  o.URL,
		Stage:     o.Stage,
		Fallback:  o.Fallback,
		Trail:     append([]string(nil), o.Trail...),
		StartedAt: o.StartedAt,
		Duration:  o.Duration,
	}
}

// Attempt is one in-flight resolution bound to a page.
type Attempt struct {
	id         string
	engine     *Engine
	page       ports.Page
	ctx        context.Context
	cancel     context.CancelFunc
	events     chan Event
	done       chan struct{}
	onResolved func(string)
	timer      *time.Timer
	logger     *slog.Logger
	started    time.Time

	// state and trail belong to the run goroutine.
	state State
	trail []string

	mu      sync.Mutex
	outcome Outcome
}

var _ ports.NavigationDelegate = (*Attempt)(nil)

// Start begins resolving originalURL on page. onResolved is invoked at most
// once, from the attempt goroutine. Cancelling ctx abandons the attempt
// without invoking it.
func (e *Engine) Start(ctx context.Context, page ports.Page, originalURL string, onResolved func(string)) *Attempt {
	ctx, cancel := context.WithCancel(ctx)
	a := &Attempt{
		id:         uuid.NewString(),
		engine:     e,
		page:       page,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan Event, eventBuffer),
		done:       make(chan struct{}),
		onResolved: onResolved,
		started:    time.Now(),
		state:      NewState(originalURL),
	}
	if e.logger != nil {
		a.logger = e.logger.With("attempt", a.id, "original", originalURL)
	}

	page.SetDelegate(a)
	a.events <- Event{Kind: EventStarted}
	a.timer = time.AfterFunc(e.timeout, func() {
		a.post(Event{Kind: EventTimedOut})
	})

	go a.run()
	return a
}

// Resolve runs one attempt to completion. If ctx ends first the returned
// outcome has Resolved set to false.
func (e *Engine) Resolve(ctx context.Context, page ports.Page, originalURL string) Outcome {
	a := e.Start(ctx, page, originalURL, nil)
	<-a.Done()
	return a.Outcome()
}

// ID identifies the attempt in logs and history.
func (a *Attempt) ID() string {
	return a.id
}

// Done is closed once the attempt has resolved or been cancelled.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Cancel abandons the attempt, as when the hosting view is dismissed.
func (a *Attempt) Cancel() {
	a.cancel()
}

// Outcome reports the terminal result; it is zero-valued until Done closes.
func (a *Attempt) Outcome() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.outcome
	out.Trail = append([]string(nil), a.outcome.Trail...)
	return out
}

// NavigationFinished is the re-entry point for page load completions.
func (a *Attempt) NavigationFinished() {
	a.post(Event{Kind: EventNavigationFinished, URL: a.page.CurrentURL()})
}

func (a *Attempt) post(ev Event) {
	select {
	case a.events <- ev:
	case <-a.done:
	case <-a.ctx.Done():
	}
}

func (a *Attempt) run() {
	defer a.finish()

	for {
		select {
		case <-a.ctx.Done():
			a.debug("attempt abandoned", "stage", a.state.Stage, "error", a.ctx.Err())
			return
		case ev := <-a.events:
			next, effects := a.engine.machine.Transition(a.state, ev)
			a.debug("transition", "event", ev.Kind, "url", ev.URL, "from", a.state.Stage, "to", next.Stage, "effects", len(effects))
			a.state = next
			for _, eff := range effects {
				if a.apply(eff) {
					return
				}
			}
		}
	}
}

// apply performs one effect and reports whether the attempt is finished.
func (a *Attempt) apply(eff Effect) bool {
	switch eff.Kind {
	case EffectLoad:
		a.trail = append(a.trail, eff.URL)
		a.page.Load(a.ctx, eff.URL)
	case EffectProbe:
		go func(target string) {
			blocked := false
			if a.engine.probe != nil {
				blocked = a.engine.probe.Probe(a.ctx, a.page)
			}
			a.post(Event{Kind: EventProbeCompleted, URL: target, Blocked: blocked})
		}(eff.URL)
	case EffectSearchArchiveLink:
		go func(target string) {
			link, err := a.page.FindLink(a.ctx, a.engine.rules.IsArchive)
			if err != nil {
				a.debug("archive link search failed", "url", target, "error", err)
				link = ""
			}
			a.post(Event{Kind: EventLinkSearched, URL: target, Link: link})
		}(eff.URL)
	case EffectResolve:
		a.timer.Stop()
		a.record(eff)
		if a.logger != nil {
			a.logger.Info("article resolved", "url", eff.URL, "stage", a.state.ResolvedFrom, "fallback", eff.Fallback, "loads", len(a.trail))
		}
		if a.onResolved != nil {
			a.onResolved(eff.URL)
		}
		return true
	}
	return false
}

func (a *Attempt) record(eff Effect) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcome = Outcome{
		ID:        a.id,
		Original:  a.state.Original,
		URL:       eff.URL,
		Stage:     a.state.ResolvedFrom,
		Resolved:  true,
		Fallback:  eff.Fallback,
		Trail:     append([]string(nil), a.trail...),
		StartedAt: a.started,
		Duration:  time.Since(a.started),
	}
}

func (a *Attempt) finish() {
	a.timer.Stop()
	a.mu.Lock()
	if !a.outcome.Resolved {
		a.outcome = Outcome{
			ID:        a.id,
			Original:  a.state.Original,
			Stage:     a.state.Stage,
			Trail:     append([]string(nil), a.trail...),
			StartedAt: a.started,
			Duration:  time.Since(a.started),
		}
	}
	a.mu.Unlock()
	close(a.done)
	a.cancel()
}

func (a *Attempt) debug(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
