package resolver

import (
	"NewYorkCrimes/internal/domain"
	"NewYorkCrimes/internal/hosts"
)

// State is the mutable record of one resolution attempt. Only the attempt's
// event loop touches it.
type State struct {
	Original string
	Current  string
	Stage    domain.Stage
	// ResolvedFrom is the stage that produced the terminal URL.
	ResolvedFrom domain.Stage
	Resolved     bool
	// AttemptedDirectArchive gates the single retry from an archive root page.
	AttemptedDirectArchive bool
	// NextCandidate counts archive-candidate loads issued so far.
	NextCandidate int
}

// NewState returns the initial state for original.
func NewState(original string) State {
	return State{Original: original, Stage: domain.StageStart}
}

// EventKind identifies what happened.
type EventKind int

const (
	EventStarted EventKind = iota
	EventNavigationFinished
	EventProbeCompleted
	EventLinkSearched
	EventTimedOut
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventNavigationFinished:
		return "navigation_finished"
	case EventProbeCompleted:
		return "probe_completed"
	case EventLinkSearched:
		return "link_searched"
	case EventTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Event is one input to the state machine. URL is the page the event refers
// to; probe and link results for a page that is no longer current are dropped.
type Event struct {
	Kind    EventKind
	URL     string
	Blocked bool
	Link    string
}

// EffectKind identifies an action the runtime must perform.
type EffectKind int

const (
	EffectLoad EffectKind = iota
	EffectProbe
	EffectSearchArchiveLink
	EffectResolve
)

func (k EffectKind) String() string {
	switch k {
	case EffectLoad:
		return "load"
	case EffectProbe:
		return "probe"
	case EffectSearchArchiveLink:
		return "search_archive_link"
	case EffectResolve:
		return "resolve"
	default:
		return "unknown"
	}
}

// Effect is one output of the state machine.
type Effect struct {
	Kind     EffectKind
	URL      string
	Fallback bool
}

// Options toggles behaviour that depends on the presentation surface.
type Options struct {
	PreferReader    bool
	ReaderCapable   bool
	ChainCandidates bool
}

// Machine is the pure transition function over State.
type Machine struct {
	rules *hosts.Rules
	opts  Options
}

// NewMachine binds classification rules and options.
func NewMachine(rules *hosts.Rules, opts Options) Machine {
	if rules == nil {
		rules = hosts.Default()
	}
	return Machine{rules: rules, opts: opts}
}

// Transition applies ev to s. A resolved state absorbs every event.
func (m Machine) Transition(s State, ev Event) (State, []Effect) {
	if s.Resolved {
		return s, nil
	}

	switch ev.Kind {
	case EventStarted:
		return m.start(s)
	case EventNavigationFinished:
		return m.navigated(s, ev.URL)
	case EventProbeCompleted:
		if ev.URL != s.Current {
			return s, nil
		}
		return m.probed(s, ev.Blocked)
	case EventLinkSearched:
		if ev.URL != s.Current || s.Stage != domain.StagePaywallAggregator {
			return s, nil
		}
		return m.linkSearched(s, ev.Link)
	case EventTimedOut:
		return resolve(s, m.TimeoutFallback(s.Original), true)
	}
	return s, nil
}

// TimeoutFallback picks the URL handed out when the deadline passes: the
// reader wrap when the surface can show it, then the archive run URL, then
// the original.
func (m Machine) TimeoutFallback(original string) string {
	if m.opts.ReaderCapable && m.rules.HasReader() {
		return m.rules.ReaderURL(original)
	}
	if run := m.rules.ArchiveRunURL(original); run != "" {
		return run
	}
	return original
}

func (m Machine) start(s State) (State, []Effect) {
	if s.Stage != domain.StageStart {
		return s, nil
	}
	if m.opts.PreferReader && m.rules.HasReader() && m.rules.Classify(s.Original) == domain.HostNYTArticle {
		s.Stage = domain.StageReaderProxy
		return s, []Effect{{Kind: EffectLoad, URL: m.rules.ReaderURL(s.Original)}}
	}
	s.Stage = domain.StagePaywallAggregator
	return s, []Effect{{Kind: EffectLoad, URL: m.rules.AggregatorURL(s.Original)}}
}

func (m Machine) navigated(s State, current string) (State, []Effect) {
	s.Current = current

	switch m.rules.Classify(current) {
	case domain.HostAggregator:
		s.Stage = domain.StagePaywallAggregator
		return s, []Effect{{Kind: EffectSearchArchiveLink, URL: current}}
	case domain.HostReaderProxy:
		s.Stage = domain.StageReaderProxy
		return s, []Effect{{Kind: EffectProbe, URL: current}}
	case domain.HostArchive:
		s.Stage = domain.StageArchiveSnapshot
		if m.rules.IsArchiveRoot(current) {
			if s.AttemptedDirectArchive && !m.chaining(s) {
				return resolve(s, s.Original, true)
			}
			s.AttemptedDirectArchive = true
			return m.loadCandidate(s)
		}
		return s, []Effect{{Kind: EffectProbe, URL: current}}
	}

	// Content or unknown hosts carry no signal; the timeout bounds the wait.
	return s, nil
}

func (m Machine) probed(s State, blocked bool) (State, []Effect) {
	switch s.Stage {
	case domain.StageReaderProxy:
		if !blocked {
			return resolve(s, s.Current, false)
		}
		if s.NextCandidate == 0 {
			return m.loadCandidate(s)
		}
		return resolve(s, s.Original, true)
	case domain.StageArchiveSnapshot:
		if blocked {
			if m.chaining(s) {
				return m.loadCandidate(s)
			}
			return resolve(s, s.Original, true)
		}
		return resolve(s, s.Current, false)
	}
	return s, nil
}

func (m Machine) linkSearched(s State, link string) (State, []Effect) {
	if link != "" && m.rules.IsArchive(link) {
		return s, []Effect{{Kind: EffectLoad, URL: link}}
	}
	return s, []Effect{{Kind: EffectLoad, URL: m.rules.ArchiveRunURL(s.Original)}}
}

func (m Machine) loadCandidate(s State) (State, []Effect) {
	candidates := m.rules.ArchiveCandidates(s.Original)
	idx := 0
	if m.opts.ChainCandidates {
		idx = s.NextCandidate
	}
	if idx >= len(candidates) {
		return resolve(s, s.Original, true)
	}
	s.NextCandidate++
	s.Stage = domain.StageArchiveSnapshot
	return s, []Effect{{Kind: EffectLoad, URL: candidates[idx]}}
}

// chaining reports whether another candidate template is left to try. Only
// chained mode walks the list; otherwise each guard retries once.
func (m Machine) chaining(s State) bool {
	return m.opts.ChainCandidates && s.NextCandidate < len(m.rules.ArchiveCandidates(s.Original))
}

func resolve(s State, target string, fallback bool) (State, []Effect) {
	s.ResolvedFrom = s.Stage
	s.Stage = domain.StageResolved
	s.Resolved = true
	return s, []Effect{{Kind: EffectResolve, URL: target, Fallback: fallback}}
}
