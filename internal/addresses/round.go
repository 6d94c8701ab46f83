package addresses

import (
	"time"

	"addrstore/internal/model"
)

// Round status values persisted with each RoundOutcome.
const (
	RoundOK       = "ok"
	RoundCanceled = "canceled"
	RoundFailed   = "failed"
)

// RoundOutcome summarises one ApplyIncoming call.
type RoundOutcome struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string

	Incoming  int
	Applied   int
	NoOps     int
	Merged    int
	Deduped   int
	Conflicts int
	Failed    int

	// Changed and Unsynced are only populated for the round just run;
	// they are not persisted.
	Changed  []string
	Unsynced []string
}

// Duration returns how long the round took.
func (r *RoundOutcome) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outgoing is what a sync manager needs to upload.
type Outgoing struct {
	Records    []*model.LocalRecord
	Tombstones []*model.Tombstone
}

// Empty reports whether there is nothing to upload.
func (o *Outgoing) Empty() bool {
	return len(o.Records) == 0 && len(o.Tombstones) == 0
}

// Uploaded describes one record or deletion the server has accepted.
// ChangeCounter is the Local row's counter when it was read for upload, so
// edits made while the upload was in flight stay unsynced.
type Uploaded struct {
	GUID          string
	Record        *model.AddressRecord
	ChangeCounter int64
	Deleted       bool
}

// UploadedRecord builds the Uploaded entry for a Local row.
func UploadedRecord(l *model.LocalRecord) Uploaded {
	return Uploaded{GUID: l.GUID, Record: l.AddressRecord.Clone(), ChangeCounter: l.ChangeCounter}
}

// UploadedTombstone builds the Uploaded entry for a deletion.
func UploadedTombstone(t *model.Tombstone) Uploaded {
	return Uploaded{GUID: t.GUID, Deleted: true}
}
