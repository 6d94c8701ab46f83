package reconcile

import "addrstore/internal/model"

// IncomingChange is one record delivered by the sync manager. The set of
// implementations is closed: Remote and RemoteTombstone.
type IncomingChange interface {
	// IncomingGUID returns the guid the change applies to.
	IncomingGUID() string
	incoming()
}

// Remote carries the remote service's current copy of a record.
type Remote struct {
	Record *model.AddressRecord
}

// RemoteTombstone says the remote service deleted the guid.
type RemoteTombstone struct {
	GUID string
}

func (r Remote) IncomingGUID() string          { return r.Record.GUID }
func (t RemoteTombstone) IncomingGUID() string { return t.GUID }

func (Remote) incoming()          {}
func (RemoteTombstone) incoming() {}

// State is everything the store holds for one guid at planning time.
type State struct {
	GUID      string
	Local     *model.LocalRecord
	Mirror    *model.AddressRecord
	Tombstone *model.Tombstone
}

// Empty reports whether the store has never seen the guid (or has fully forgotten it).
func (s *State) Empty() bool {
	return s.Local == nil && s.Mirror == nil && s.Tombstone == nil
}

// Equal compares two states row by row.
func (s *State) Equal(other *State) bool {
	return s.GUID == other.GUID &&
		s.Local.Equal(other.Local) &&
		s.Mirror.Equal(other.Mirror) &&
		s.Tombstone.Equal(other.Tombstone)
}
