package reconcile

import "addrstore/internal/model"

// Kind labels what a plan does, for logging and round telemetry.
type Kind string

const (
	KindNoop      Kind = "noop"
	KindInsert    Kind = "insert"
	KindAdopt     Kind = "adopt"
	KindMirror    Kind = "mirror"
	KindMerge     Kind = "merge"
	KindKeepLocal Kind = "keep_local"
	KindDelete    Kind = "delete"
	KindPurge     Kind = "purge"
	KindDedupe    Kind = "dedupe"
)

// UpdatePlan is the set of row mutations computed for one incoming change.
// Expect holds the state of every guid the plan touches as it was read
// during planning; the executor refuses to apply the plan if any of them
// has changed since.
type UpdatePlan struct {
	GUID      string
	Kind      Kind
	Canonical string
	Unsynced  bool
	Expect    []State
	Mutations []Mutation
}

// IsNoop reports whether applying the plan would change nothing.
func (p *UpdatePlan) IsNoop() bool {
	return len(p.Mutations) == 0
}

// Touched returns the distinct guids the plan writes, in mutation order.
func (p *UpdatePlan) Touched() []string {
	seen := make(map[string]bool)
	var guids []string
	for _, m := range p.Mutations {
		g := m.Target()
		if !seen[g] {
			seen[g] = true
			guids = append(guids, g)
		}
	}
	return guids
}

func (p *UpdatePlan) add(m ...Mutation) {
	p.Mutations = append(p.Mutations, m...)
}

// Mutation is a single row write. The set of implementations is closed.
type Mutation interface {
	Target() string
	mutation()
}

// PutLocal inserts or replaces the Local row.
type PutLocal struct{ Record *model.LocalRecord }

// PutMirror inserts or replaces the Mirror row.
type PutMirror struct{ Record *model.AddressRecord }

// PutTombstone inserts or replaces the Tombstone row.
type PutTombstone struct{ Tombstone model.Tombstone }

// DeleteLocal removes the Local row.
type DeleteLocal struct{ GUID string }

// DeleteMirror removes the Mirror row.
type DeleteMirror struct{ GUID string }

// DeleteTombstone removes the Tombstone row.
type DeleteTombstone struct{ GUID string }

func (m PutLocal) Target() string        { return m.Record.GUID }
func (m PutMirror) Target() string       { return m.Record.GUID }
func (m PutTombstone) Target() string    { return m.Tombstone.GUID }
func (m DeleteLocal) Target() string     { return m.GUID }
func (m DeleteMirror) Target() string    { return m.GUID }
func (m DeleteTombstone) Target() string { return m.GUID }

func (PutLocal) mutation()        {}
func (PutMirror) mutation()       {}
func (PutTombstone) mutation()    {}
func (DeleteLocal) mutation()     {}
func (DeleteMirror) mutation()    {}
func (DeleteTombstone) mutation() {}

// AppliedOutcome reports what the executor did with a plan.
type AppliedOutcome struct {
	GUID      string
	Kind      Kind
	Canonical string
	Changed   []string
	Mutations int
}
