package decision

import "sort"

// Snapshot is the full set of known decisions, keyed by identifier.
// It is owned by a single pipeline run and is not safe for concurrent use.
type Snapshot struct {
	byID map[string]Decision
}

// NewSnapshot returns an empty Snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{byID: make(map[string]Decision)}
}

// Len returns the number of decisions.
func (s *Snapshot) Len() int {
	return len(s.byID)
}

// Get looks up a decision by identifier.
func (s *Snapshot) Get(id string) (Decision, bool) {
	d, ok := s.byID[id]
	return d, ok
}

// Upsert inserts or replaces d. Re-upserting identical fields is a no-op and
// returns false.
func (s *Snapshot) Upsert(d Decision) bool {
	if d.ID == "" {
		return false
	}
	if cur, ok := s.byID[d.ID]; ok && cur.Equal(d) {
		return false
	}
	s.byID[d.ID] = d
	return true
}

// Decisions returns every decision ordered by identifier.
func (s *Snapshot) Decisions() []Decision {
	out := make([]Decision, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
