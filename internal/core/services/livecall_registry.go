package services

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/lorrc/liveops/internal/core/domain"
	"github.com/lorrc/liveops/internal/core/ports"
)

// LiveCallRegistry holds the authoritative set of active call sessions. It
// is mutated only by realtime events; readers get copies.
type LiveCallRegistry struct {
	mu       sync.RWMutex
	sessions map[string]domain.LiveCallSession
	order    []string
	metrics  domain.LiveCallMetrics
	lastSeq  int64

	watchMu  sync.RWMutex
	watchers map[int]func(domain.LiveCallsSnapshot)
	nextID   int

	subs   []ports.Subscription
	logger *slog.Logger
}

var _ ports.LiveCallService = (*LiveCallRegistry)(nil)

// NewLiveCallRegistry creates a registry fed by the live call events on bus.
func NewLiveCallRegistry(bus ports.EventBus, logger *slog.Logger) *LiveCallRegistry {
	r := &LiveCallRegistry{
		sessions: make(map[string]domain.LiveCallSession),
		watchers: make(map[int]func(domain.LiveCallsSnapshot)),
		logger:   logger.With("component", "livecall_registry"),
	}

	r.subs = []ports.Subscription{
		bus.On(domain.EventLiveCallsUpdate, r.handleSnapshot),
		bus.On(domain.EventCallUpdate, r.handleUpdate),
		bus.On(domain.EventCallEnd, r.handleEnd),
	}
	return r
}

func (r *LiveCallRegistry) handleSnapshot(data json.RawMessage) {
	var snap domain.LiveCallsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.Warn("ignoring malformed live calls snapshot", "error", err)
		return
	}
	r.ApplySnapshot(snap)
}

func (r *LiveCallRegistry) handleUpdate(data json.RawMessage) {
	update, err := domain.ParseCallUpdate(data)
	if err != nil {
		r.logger.Warn("ignoring malformed call update", "error", err)
		return
	}
	r.ApplyUpdate(update)
}

func (r *LiveCallRegistry) handleEnd(data json.RawMessage) {
	var end domain.CallEnd
	if err := json.Unmarshal(data, &end); err != nil || end.ID == "" {
		r.logger.Warn("ignoring malformed call end", "error", err)
		return
	}
	r.ApplyEnd(end)
}

// acceptSeq must be called with mu held.
func (r *LiveCallRegistry) acceptSeq(seq int64) bool {
	if seq <= 0 {
		return true
	}
	if seq < r.lastSeq {
		return false
	}
	r.lastSeq = seq
	return true
}

// ApplySnapshot replaces the whole collection with snap.
func (r *LiveCallRegistry) ApplySnapshot(snap domain.LiveCallsSnapshot) bool {
	r.mu.Lock()
	if !r.acceptSeq(snap.Seq) {
		r.mu.Unlock()
		r.logger.Debug("dropping out-of-order snapshot", "seq", snap.Seq)
		return false
	}

	r.sessions = make(map[string]domain.LiveCallSession, len(snap.Calls))
	r.order = r.order[:0]
	for _, call := range snap.Calls {
		if call.ID == "" {
			continue
		}
		if _, dup := r.sessions[call.ID]; !dup {
			r.order = append(r.order, call.ID)
		}
		r.sessions[call.ID] = call
	}
	r.metrics = snap.Metrics
	r.mu.Unlock()

	r.notify()
	return true
}

// ApplyUpdate merges an incremental update. Unknown sessions are created
// unless the update is terminal; terminal updates remove the session.
func (r *LiveCallRegistry) ApplyUpdate(u domain.CallUpdate) bool {
	r.mu.Lock()
	if !r.acceptSeq(u.Seq) {
		r.mu.Unlock()
		r.logger.Debug("dropping out-of-order call update", "id", u.ID, "seq", u.Seq)
		return false
	}

	existing, found := r.sessions[u.ID]
	if u.Status.IsTerminal() {
		if !found {
			r.mu.Unlock()
			return false
		}
		r.removeLocked(u.ID)
		r.mu.Unlock()
		r.notify()
		return true
	}

	if !found {
		existing = domain.LiveCallSession{ID: u.ID}
	}
	merged, err := existing.Merge(u.Fields)
	if err != nil {
		r.mu.Unlock()
		r.logger.Warn("could not merge call update", "id", u.ID, "error", err)
		return false
	}
	merged.ID = u.ID

	if !found {
		r.order = append(r.order, u.ID)
	}
	r.sessions[u.ID] = merged
	r.mu.Unlock()

	r.notify()
	return true
}

// ApplyEnd removes the session named by e.
func (r *LiveCallRegistry) ApplyEnd(e domain.CallEnd) bool {
	r.mu.Lock()
	if !r.acceptSeq(e.Seq) {
		r.mu.Unlock()
		return false
	}
	if _, ok := r.sessions[e.ID]; !ok {
		r.mu.Unlock()
		return false
	}
	r.removeLocked(e.ID)
	r.mu.Unlock()

	r.notify()
	return true
}

func (r *LiveCallRegistry) removeLocked(id string) {
	delete(r.sessions, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Snapshot returns a copy of the collection in arrival order.
func (r *LiveCallRegistry) Snapshot() domain.LiveCallsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	calls := make([]domain.LiveCallSession, 0, len(r.order))
	for _, id := range r.order {
		calls = append(calls, r.sessions[id])
	}
	return domain.LiveCallsSnapshot{
		Seq:     r.lastSeq,
		Calls:   calls,
		Metrics: r.metrics,
	}
}

// Get returns the session with id.
func (r *LiveCallRegistry) Get(id string) (domain.LiveCallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Watch calls fn with a fresh snapshot after every applied change.
func (r *LiveCallRegistry) Watch(fn func(domain.LiveCallsSnapshot)) func() {
	r.watchMu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = fn
	r.watchMu.Unlock()

	return func() {
		r.watchMu.Lock()
		delete(r.watchers, id)
		r.watchMu.Unlock()
	}
}

func (r *LiveCallRegistry) notify() {
	r.watchMu.RLock()
	if len(r.watchers) == 0 {
		r.watchMu.RUnlock()
		return
	}
	fns := make([]func(domain.LiveCallsSnapshot), 0, len(r.watchers))
	for _, fn := range r.watchers {
		fns = append(fns, fn)
	}
	r.watchMu.RUnlock()

	snap := r.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

// Close detaches the registry from the event bus.
func (r *LiveCallRegistry) Close() {
	for _, s := range r.subs {
		s.Unsubscribe()
	}
}

// CallSelection tracks the session shown in a detail view and clears itself
// when that session leaves the registry.
type CallSelection struct {
	calls    ports.LiveCallService
	mu       sync.RWMutex
	selected string
	cancel   func()
}

// NewCallSelection creates a selection bound to calls.
func NewCallSelection(calls ports.LiveCallService) *CallSelection {
	sel := &CallSelection{calls: calls}
	sel.cancel = calls.Watch(sel.reconcile)
	return sel
}

// Select selects id. It returns false when no such session exists.
func (s *CallSelection) Select(id string) bool {
	if _, ok := s.calls.Get(id); !ok {
		return false
	}
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
	return true
}

// Selected returns the selected session, if any.
func (s *CallSelection) Selected() (domain.LiveCallSession, bool) {
	s.mu.RLock()
	id := s.selected
	s.mu.RUnlock()

	if id == "" {
		return domain.LiveCallSession{}, false
	}
	session, ok := s.calls.Get(id)
	if !ok {
		s.clearIf(id)
	}
	return session, ok
}

// SelectedID returns the selected id or an empty string.
func (s *CallSelection) SelectedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

func (s *CallSelection) Clear() {
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()
}

func (s *CallSelection) clearIf(id string) {
	s.mu.Lock()
	if s.selected == id {
		s.selected = ""
	}
	s.mu.Unlock()
}

func (s *CallSelection) reconcile(snap domain.LiveCallsSnapshot) {
	id := s.SelectedID()
	if id == "" {
		return
	}
	for _, c := range snap.Calls {
		if c.ID == id {
			return
		}
	}
	s.clearIf(id)
}

// Close stops watching the registry.
func (s *CallSelection) Close() {
	s.cancel()
}
