package model

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrInvalidGUID is returned when a guid is empty, too long, or contains
	// characters outside the URL-safe alphabet.
	ErrInvalidGUID = errors.New("invalid guid")

	// ErrInvalidMetadata is returned when a timestamp or usage counter is negative.
	ErrInvalidMetadata = errors.New("invalid metadata")
)

// guidPattern accepts uuid strings as well as 12-character base64url sync guids.
var guidPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateGUID reports whether guid is usable as a record identity.
func ValidateGUID(guid string) error {
	if !guidPattern.MatchString(guid) {
		return fmt.Errorf("%w: %q", ErrInvalidGUID, guid)
	}
	return nil
}

// Timestamp is milliseconds since the Unix epoch.
type Timestamp int64

// TimestampFrom converts a wall-clock time into a Timestamp.
func TimestampFrom(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time returns the Timestamp as a UTC time.Time.
func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts)).UTC()
}

// Address holds the user-visible fields of a postal address.
// A nil field is absent, which is distinct from an empty string.
type Address struct {
	Name          *string `json:"name,omitempty"`
	Organization  *string `json:"organization,omitempty"`
	StreetAddress *string `json:"street_address,omitempty"`
	AddressLevel3 *string `json:"address_level3,omitempty"`
	AddressLevel2 *string `json:"address_level2,omitempty"`
	AddressLevel1 *string `json:"address_level1,omitempty"`
	PostalCode    *string `json:"postal_code,omitempty"`
	Country       *string `json:"country,omitempty"`
	Tel           *string `json:"tel,omitempty"`
	Email         *string `json:"email,omitempty"`
}

// Metadata is the usage bookkeeping carried with every record.
type Metadata struct {
	TimeCreated      Timestamp `json:"time_created"`
	TimeLastUsed     Timestamp `json:"time_last_used"`
	TimeLastModified Timestamp `json:"time_last_modified"`
	TimesUsed        int64     `json:"times_used"`
}

// Validate rejects negative timestamps and counters.
func (m Metadata) Validate() error {
	switch {
	case m.TimeCreated < 0:
		return fmt.Errorf("%w: time_created is negative", ErrInvalidMetadata)
	case m.TimeLastUsed < 0:
		return fmt.Errorf("%w: time_last_used is negative", ErrInvalidMetadata)
	case m.TimeLastModified < 0:
		return fmt.Errorf("%w: time_last_modified is negative", ErrInvalidMetadata)
	case m.TimesUsed < 0:
		return fmt.Errorf("%w: times_used is negative", ErrInvalidMetadata)
	}
	return nil
}

// AddressRecord is an address together with its identity and usage metadata.
// Mirror rows and incoming remote records use this shape directly.
type AddressRecord struct {
	GUID string `json:"guid"`
	Address
	Metadata
}

// NewAddressRecord builds a record after validating the guid and metadata.
func NewAddressRecord(guid string, addr Address, meta Metadata) (*AddressRecord, error) {
	rec := &AddressRecord{GUID: guid, Address: addr, Metadata: meta}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks the guid format and metadata bounds.
func (r *AddressRecord) Validate() error {
	if err := ValidateGUID(r.GUID); err != nil {
		return err
	}
	return r.Metadata.Validate()
}

// Equal reports whether two records carry identical guid, fields and metadata.
func (r *AddressRecord) Equal(other *AddressRecord) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.GUID == other.GUID && r.Address.Equal(other.Address) && r.Metadata == other.Metadata
}

// Clone returns a deep copy so callers can mutate fields without aliasing.
func (r *AddressRecord) Clone() *AddressRecord {
	if r == nil {
		return nil
	}
	return &AddressRecord{GUID: r.GUID, Address: r.Address.Clone(), Metadata: r.Metadata}
}

// LocalRecord is the user-visible row. ChangeCounter counts edits not yet
// confirmed by an upload.
type LocalRecord struct {
	AddressRecord
	ChangeCounter int64 `json:"change_counter"`
}

// Unsynced reports whether the row has edits that still need uploading.
func (l *LocalRecord) Unsynced() bool {
	return l.ChangeCounter > 0
}

// Equal compares the record and its change counter.
func (l *LocalRecord) Equal(other *LocalRecord) bool {
	if l == nil || other == nil {
		return l == other
	}
	return l.ChangeCounter == other.ChangeCounter && l.AddressRecord.Equal(&other.AddressRecord)
}

// Clone returns a deep copy.
func (l *LocalRecord) Clone() *LocalRecord {
	if l == nil {
		return nil
	}
	return &LocalRecord{AddressRecord: *l.AddressRecord.Clone(), ChangeCounter: l.ChangeCounter}
}

// Tombstone records that a previously synced guid was deleted locally.
type Tombstone struct {
	GUID        string    `json:"guid"`
	TimeDeleted Timestamp `json:"time_deleted"`
}

// Equal compares two tombstones, treating nil as absent.
func (t *Tombstone) Equal(other *Tombstone) bool {
	if t == nil || other == nil {
		return t == other
	}
	return *t == *other
}

// String returns a pointer to s. Handy for building Address literals.
func String(s string) *string {
	return &s
}
