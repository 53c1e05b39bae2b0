// Package session tracks one search box: the query as typed so far and the
// ranked results last shown. Each keystroke either narrows the previous
// result set or re-runs a full match. A result is emitted only if no newer
// keystroke arrived while it was being computed.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// State is the session's position in the typing cycle.
type State int

const (
	// StateIdle: no query, or the last one was too short to search.
	StateIdle State = iota
	// StateNarrowing: the last query produced a real match that the next
	// keystroke may narrow.
	StateNarrowing
)

func (s State) String() string {
	if s == StateNarrowing {
		return "narrowing"
	}
	return "idle"
}

// Mode records how the last emitted result was computed.
type Mode int

const (
	ModeIdle Mode = iota
	ModeFull
	ModeNarrow
	ModeCached
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeNarrow:
		return "narrow"
	case ModeCached:
		return "cached"
	default:
		return "idle"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	for _, mode := range []Mode{ModeIdle, ModeFull, ModeNarrow, ModeCached} {
		if mode.String() == string(b) {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", b)
}

// Result is one emitted row. It is a copy and never aliases index memory.
type Result struct {
	ID       string         `json:"id"`
	Label    string         `json:"label"`
	Category shard.Category `json:"category"`
	URL      string         `json:"url"`
	Anchors  []shard.Anchor `json:"anchors"`
	Tier     ranker.Tier    `json:"tier"`
}

// cloneResults copies rows and their anchor slices, so the session's state
// and what callers receive never share memory.
func cloneResults(results []Result) []Result {
	if results == nil {
		return nil
	}
	out := make([]Result, len(results))
	for i, r := range results {
		r.Anchors = slices.Clone(r.Anchors)
		out[i] = r
	}
	return out
}

// Indexes supplies the current index; nil means none is loaded yet.
type Indexes interface {
	Current() *index.Index
}

type Option func(*Session)

// WithLimit caps the number of emitted results. The full hit list is still
// kept for narrowing.
func WithLimit(n int) Option {
	return func(s *Session) { s.limit = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

func withClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

type Session struct {
	id      string
	indexes Indexes
	matcher *matcher.Matcher
	limit   int
	metrics *metrics.Metrics
	now     func() time.Time

	mu           sync.Mutex
	version      uint64
	state        State
	mode         Mode
	plan         matcher.Plan
	indexVersion uint64
	hits         []ranker.Hit
	results      []Result
	lastUsed     time.Time
}

// New creates an idle session reading from indexes.
func New(id string, indexes Indexes, m *matcher.Matcher, opts ...Option) *Session {
	s := &Session{id: id, indexes: indexes, matcher: m, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.lastUsed = s.now()
	return s
}

func (s *Session) ID() string { return s.id }

// OnQueryChanged handles one edit of the search box and returns the results
// to display. If another call superseded this one before it finished, the
// result is discarded and errors.ErrStaleQuery returned; callers drop it
// silently. Empty queries return no results and no error.
func (s *Session) OnQueryChanged(ctx context.Context, raw string) ([]Result, error) {
	u, err := s.Update(ctx, raw)
	if err != nil {
		return nil, err
	}
	return u.Results, nil
}

// Update is what one query edit produced.
type Update struct {
	Query        string   `json:"query"`
	Mode         Mode     `json:"mode"`
	Total        int      `json:"total"`
	IndexVersion uint64   `json:"index_version"`
	Results      []Result `json:"results"`
}

// Update is OnQueryChanged reporting how the results were produced as well.
func (s *Session) Update(ctx context.Context, raw string) (Update, error) {
	start := s.now()

	s.mu.Lock()
	s.version++
	ticket := s.version
	prevState, prevPlan, prevIndex, prevHits := s.state, s.plan, s.indexVersion, s.hits
	s.lastUsed = start
	s.mu.Unlock()

	plan := matcher.Parse(raw)
	if plan.Normalized == "" {
		return s.commit(ctx, ticket, StateIdle, ModeIdle, plan, 0, nil, nil, start)
	}

	idx := s.indexes.Current()
	if idx == nil {
		return Update{}, apperrors.ErrIndexUnavailable
	}

	var m matcher.Match
	mode := ModeFull
	if prevState == StateNarrowing && prevIndex == idx.Version() && plan.Extends(prevPlan) {
		m = s.matcher.Narrow(idx, prevHits, raw)
		mode = ModeNarrow
	} else {
		var err error
		m, err = s.matcher.Match(ctx, idx, raw)
		if err != nil {
			if ctx.Err() != nil {
				s.stale()
				return Update{}, apperrors.ErrStaleQuery
			}
			return Update{}, err
		}
		if m.Outcome == matcher.OutcomeCached {
			mode = ModeCached
		}
	}

	state := StateNarrowing
	if m.Outcome == matcher.OutcomeEmpty {
		state, mode = StateIdle, ModeIdle
	}
	emit := m.Hits
	if s.limit > 0 && len(emit) > s.limit {
		emit = emit[:s.limit]
	}
	return s.commit(ctx, ticket, state, mode, plan, m.Version, slices.Clone(m.Hits), ToResults(idx, emit), start)
}

func (s *Session) commit(ctx context.Context, ticket uint64, state State, mode Mode, plan matcher.Plan,
	indexVersion uint64, hits []ranker.Hit, results []Result, start time.Time) (Update, error) {
	s.mu.Lock()
	if ticket != s.version || ctx.Err() != nil {
		s.mu.Unlock()
		s.stale()
		return Update{}, apperrors.ErrStaleQuery
	}
	s.state, s.mode, s.plan = state, mode, plan
	s.indexVersion, s.hits, s.results = indexVersion, hits, results
	u := Update{
		Query:        plan.Normalized,
		Mode:         mode,
		Total:        len(hits),
		IndexVersion: indexVersion,
		Results:      cloneResults(results),
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.QueriesTotal.WithLabelValues(mode.String()).Inc()
		s.metrics.QueryLatency.WithLabelValues(mode.String()).Observe(s.now().Sub(start).Seconds())
		s.metrics.QueryResultsCount.Observe(float64(len(hits)))
	}
	return u, nil
}

func (s *Session) stale() {
	if s.metrics != nil {
		s.metrics.StaleQueriesTotal.Inc()
	}
}

// Reset returns the session to idle and supersedes any query in flight.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	s.state, s.mode = StateIdle, ModeIdle
	s.plan = matcher.Plan{}
	s.indexVersion, s.hits, s.results = 0, nil, nil
	s.lastUsed = s.now()
}

// Snapshot is a consistent copy of the session's visible state.
type Snapshot struct {
	State   State
	Mode    Mode
	Query   string
	Results []Result
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{State: s.state, Mode: s.mode, Query: s.plan.Normalized, Results: cloneResults(s.results)}
}

// LastUsed is when the session last received a query or reset.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// ToResults converts hits into emitted rows.
func ToResults(idx *index.Index, hits []ranker.Hit) []Result {
	out := make([]Result, len(hits))
	for i, h := range hits {
		e := idx.Entry(h.Ref)
		out[i] = Result{
			ID:       e.QualifiedID(),
			Label:    e.Label,
			Category: e.Category,
			URL:      e.URL(),
			Anchors:  slices.Clone(e.Anchors),
			Tier:     h.Tier,
		}
	}
	return out
}
