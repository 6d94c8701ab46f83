package reconcile

import (
	"fmt"
	"sort"

	"addrstore/internal/model"
)

// Planner decides how to apply one incoming change. It never touches
// storage: the caller loads the State (and dedupe candidates), and an
// executor applies the returned plan.
type Planner struct {
	// DedupeFields is the address identity used to match a brand-new
	// incoming record against existing local rows. Empty disables dedupe.
	DedupeFields []model.FieldName

	// DedupeSynced allows matching local rows that have already been synced.
	// The incoming copy is then kept as a mirror only, so both guids stay
	// live on the server and only one is shown locally.
	DedupeSynced bool
}

// NewPlanner returns a planner using the given identity fields.
func NewPlanner(fields []model.FieldName, dedupeSynced bool) *Planner {
	return &Planner{DedupeFields: fields, DedupeSynced: dedupeSynced}
}

// Input is everything a plan is computed from.
type Input struct {
	State      *State
	Change     IncomingChange
	Candidates []*State
}

// NeedsCandidates reports whether Plan will look at dedupe candidates for
// this change, so callers can skip the lookup otherwise.
func (p *Planner) NeedsCandidates(state *State, change IncomingChange) bool {
	if len(p.DedupeFields) == 0 || state.Local != nil || state.Tombstone != nil {
		return false
	}
	_, ok := change.(Remote)
	return ok
}

// Plan computes the update plan for in.Change against in.State.
func (p *Planner) Plan(in Input) *UpdatePlan {
	st := in.State
	plan := &UpdatePlan{
		GUID:      st.GUID,
		Kind:      KindNoop,
		Canonical: st.GUID,
		Expect:    []State{*st},
	}

	switch ch := in.Change.(type) {
	case Remote:
		p.planRemote(plan, in, ch.Record)
	case RemoteTombstone:
		p.planTombstone(plan, st)
	default:
		panic(fmt.Sprintf("reconcile: unknown incoming change %T", in.Change))
	}

	if st.Local != nil && plan.Kind == KindNoop {
		plan.Unsynced = st.Local.Unsynced()
	}
	return plan
}

func (p *Planner) planTombstone(plan *UpdatePlan, st *State) {
	switch {
	case st.Local == nil:
		if st.Mirror != nil {
			plan.Kind = KindPurge
			plan.add(DeleteMirror{GUID: st.GUID})
		}
		if st.Tombstone != nil {
			plan.Kind = KindPurge
			plan.add(DeleteTombstone{GUID: st.GUID})
		}

	case st.Local.Unsynced():
		// Local edits win over a remote delete. Forgetting the mirror makes
		// the next upload recreate the record.
		plan.Unsynced = true
		if st.Mirror != nil {
			plan.Kind = KindKeepLocal
			plan.add(DeleteMirror{GUID: st.GUID})
		}

	default:
		plan.Kind = KindDelete
		plan.add(DeleteLocal{GUID: st.GUID})
		if st.Mirror != nil {
			plan.add(DeleteMirror{GUID: st.GUID})
		}
	}
}

func (p *Planner) planRemote(plan *UpdatePlan, in Input, r *model.AddressRecord) {
	st := in.State

	switch {
	case st.Local == nil && st.Mirror == nil:
		if st.Tombstone != nil {
			// Deleted here and never confirmed: keep the deletion pending.
			plan.Kind = KindMirror
			plan.add(PutMirror{Record: r.Clone()})
			return
		}
		if cand := p.pickCandidate(r, in.Candidates); cand != nil {
			p.planDedupe(plan, r, cand)
			return
		}
		plan.Kind = KindInsert
		plan.add(
			PutMirror{Record: r.Clone()},
			PutLocal{Record: &model.LocalRecord{AddressRecord: *r.Clone()}},
		)

	case st.Local == nil:
		if sameContent(st.Mirror, r) {
			return
		}
		if st.Tombstone != nil {
			plan.Kind = KindMirror
			plan.add(PutMirror{Record: r.Clone()})
			return
		}
		// A mirror without a local row is a duplicate absorbed earlier.
		if cand := p.pickCandidate(r, in.Candidates); cand != nil {
			p.planDedupe(plan, r, cand)
			return
		}
		plan.Kind = KindAdopt
		plan.add(
			PutMirror{Record: r.Clone()},
			PutLocal{Record: &model.LocalRecord{AddressRecord: *r.Clone()}},
		)

	case st.Local.Unsynced():
		var merged *model.AddressRecord
		if st.Mirror == nil {
			merged = mergeTwoWay(st.GUID, &st.Local.AddressRecord, r)
		} else {
			if sameContent(st.Mirror, r) {
				return
			}
			merged = mergeThreeWay(&st.Local.AddressRecord, st.Mirror, r)
		}

		counter := int64(0)
		if !sameContent(merged, r) {
			counter = max(st.Local.ChangeCounter, 1)
		}
		plan.Kind = KindMerge
		plan.Unsynced = counter > 0
		plan.add(
			PutMirror{Record: r.Clone()},
			PutLocal{Record: &model.LocalRecord{AddressRecord: *merged, ChangeCounter: counter}},
		)

	default:
		adopted := adopt(&st.Local.AddressRecord, r)
		if sameContent(&st.Local.AddressRecord, adopted) && st.Mirror != nil && sameContent(st.Mirror, r) {
			return
		}
		plan.Kind = KindAdopt
		plan.add(
			PutMirror{Record: r.Clone()},
			PutLocal{Record: &model.LocalRecord{AddressRecord: *adopted}},
		)
	}
}

// adopt takes the remote record as the new local copy without moving the
// local use and modification times backwards.
func adopt(local, r *model.AddressRecord) *model.AddressRecord {
	out := r.Clone()
	out.GUID = local.GUID
	out.TimeLastUsed = maxTimestamp(local.TimeLastUsed, r.TimeLastUsed)
	out.TimeLastModified = maxTimestamp(local.TimeLastModified, r.TimeLastModified)
	return out
}

// planDedupe folds an incoming record into an existing local duplicate.
func (p *Planner) planDedupe(plan *UpdatePlan, r *model.AddressRecord, cand *State) {
	plan.Kind = KindDedupe
	plan.Expect = append(plan.Expect, *cand)
	local := cand.Local

	if cand.Mirror == nil {
		// The local row never reached the server, so the incoming guid wins
		// and the local guid disappears without a tombstone.
		merged := mergeTwoWay(r.GUID, &local.AddressRecord, r)
		counter := int64(0)
		if !sameContent(merged, r) {
			counter = max(local.ChangeCounter, 1)
		}
		plan.Canonical = r.GUID
		plan.Unsynced = counter > 0
		plan.add(
			DeleteLocal{GUID: local.GUID},
			PutMirror{Record: r.Clone()},
			PutLocal{Record: &model.LocalRecord{AddressRecord: *merged, ChangeCounter: counter}},
		)
		return
	}

	// Both guids exist server-side and another device may still show the
	// incoming one, so it is never deleted. Keep the local guid, fill its
	// blanks from the incoming copy, and remember the incoming copy as a
	// mirror so redelivery is a no-op.
	merged := mergeTwoWay(local.GUID, &local.AddressRecord, r)
	plan.Canonical = local.GUID
	plan.Unsynced = local.Unsynced()
	if !sameContent(merged, &local.AddressRecord) {
		counter := local.ChangeCounter
		if !sameContent(merged, cand.Mirror) {
			counter = max(counter, 1)
		}
		plan.Unsynced = counter > 0
		plan.add(PutLocal{Record: &model.LocalRecord{AddressRecord: *merged, ChangeCounter: counter}})
	}
	plan.add(PutMirror{Record: r.Clone()})
}

// pickCandidate returns the local row that r duplicates, preferring rows
// that were never synced, then the lowest guid.
func (p *Planner) pickCandidate(r *model.AddressRecord, candidates []*State) *State {
	if len(p.DedupeFields) == 0 || !r.Address.HasAny(p.DedupeFields) {
		return nil
	}

	var matches []*State
	for _, c := range candidates {
		if c == nil || c.Local == nil || c.GUID == r.GUID {
			continue
		}
		if c.Mirror != nil && !p.DedupeSynced {
			continue
		}
		if !c.Local.Address.EqualOn(r.Address, p.DedupeFields) {
			continue
		}
		matches = append(matches, c)
	}
	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		ni, nj := matches[i].Mirror == nil, matches[j].Mirror == nil
		if ni != nj {
			return ni
		}
		return matches[i].GUID < matches[j].GUID
	})
	return matches[0]
}
