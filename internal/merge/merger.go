// Package merge reconciles fetched candidates into a decision Snapshot.
package merge

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
)

// Report counts the outcome of one Reconcile pass.
type Report struct {
	Inserted  int
	Updated   int
	Unchanged int
	Rejected  int
}

// Add accumulates another report into r.
func (r *Report) Add(o Report) {
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
	r.Rejected += o.Rejected
}

// Observer receives merge outcomes, typically a metrics sink.
type Observer interface {
	ObserveMerge(outcome string)
}

// Merger applies candidates to a Snapshot with field-level semantics.
type Merger struct {
	clock    decision.Clock
	observer Observer
	logger   *zap.Logger
}

// New constructs a Merger. observer may be nil.
func New(clock decision.Clock, observer Observer, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{clock: clock, observer: observer, logger: logger}
}

// Reconcile applies candidates in order. Fields absent from a candidate keep
// their stored value; a later candidate for the same identifier wins.
func (m *Merger) Reconcile(snap *decision.Snapshot, candidates []decision.Candidate) Report {
	var report Report
	for _, c := range candidates {
		id, ok := c.Identifier()
		if !ok {
			report.Rejected++
			m.observe("rejected")
			m.logger.Warn("candidate without identifier",
				zap.String("stage", "merge"),
				zap.String("url", c.SourceURL),
				zap.String("parties", c.Parties),
			)
			continue
		}

		now := m.clock.Now()
		current, exists := snap.Get(id)
		if !exists {
			current = decision.Decision{ID: id, CreatedAt: now, UpdatedAt: now}
			current.Apply(c)
			snap.Upsert(current)
			report.Inserted++
			m.observe("inserted")
			m.logger.Debug("decision inserted", zap.String("decision_id", id))
			continue
		}

		if current.Apply(c) {
			current.UpdatedAt = now
			report.Updated++
			m.observe("updated")
			m.logger.Debug("decision updated", zap.String("decision_id", id))
		} else {
			report.Unchanged++
			m.observe("unchanged")
		}
		snap.Upsert(current)
	}
	return report
}

func (m *Merger) observe(outcome string) {
	if m.observer != nil {
		m.observer.ObserveMerge(outcome)
	}
}
