package session

import (
	"slices"
	"sync"
	"time"

	"github.com/sells-group/location-cli/internal/model"
)

// StreamProjection is the part of SessionState derived from one update batch.
type StreamProjection struct {
	ListHead       model.LocationFix
	LastHWLocation model.LocationFix
	LastLocation   model.LocationFix
}

// Project maps an update batch onto the stream-owned state fields. An empty
// fix list yields the empty record as the list head.
func Project(batch model.UpdateBatch) StreamProjection {
	var head model.LocationFix
	if len(batch.Locations) > 0 {
		head = batch.Locations[0]
	}
	return StreamProjection{
		ListHead:       head,
		LastHWLocation: batch.LastHWLocation,
		LastLocation:   batch.LastLocation,
	}
}

// State owns the presentation-visible session state. Stream projections and
// on-demand results write disjoint fields, so concurrent writers never
// clobber each other.
type State struct {
	mu         sync.RWMutex
	s          model.SessionState
	updates    int
	lastUpdate time.Time
	nowFunc    func() time.Time
}

// NewState returns an empty state.
func NewState() *State {
	return &State{nowFunc: time.Now}
}

// Snapshot returns a copy safe to hand to the presentation layer.
func (st *State) Snapshot() model.SessionState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.copyLocked()
}

func (st *State) copyLocked() model.SessionState {
	out := st.s
	if st.s.LastKnown != nil {
		fix := *st.s.LastKnown
		out.LastKnown = &fix
	}
	out.SearchResults = slices.Clone(st.s.SearchResults)
	return out
}

func (st *State) applyStream(p StreamProjection) model.SessionState {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.nowFunc()
	st.s.ListHead = p.ListHead
	st.s.LastHWLocation = p.LastHWLocation
	st.s.LastLocation = p.LastLocation
	st.s.UpdatedAt = now
	st.updates++
	st.lastUpdate = now
	return st.copyLocked()
}

func (st *State) setLastKnown(fix model.LocationFix) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.LastKnown = &fix
}

func (st *State) setSearchResults(results []model.LocationFix) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.SearchResults = slices.Clone(results)
}

func (st *State) streamStats() (int, time.Time) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.updates, st.lastUpdate
}
