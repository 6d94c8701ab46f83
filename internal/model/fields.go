package model

import (
	"fmt"
	"strings"
)

// FieldName identifies one address field. The string form is used in
// configuration and request payloads.
type FieldName string

const (
	FieldFullName      FieldName = "name"
	FieldOrganization  FieldName = "organization"
	FieldStreetAddress FieldName = "street_address"
	FieldAddressLevel3 FieldName = "address_level3"
	FieldAddressLevel2 FieldName = "address_level2"
	FieldAddressLevel1 FieldName = "address_level1"
	FieldPostalCode    FieldName = "postal_code"
	FieldCountry       FieldName = "country"
	FieldTel           FieldName = "tel"
	FieldEmail         FieldName = "email"
)

// AllFields lists every address field in storage order.
var AllFields = []FieldName{
	FieldFullName,
	FieldOrganization,
	FieldStreetAddress,
	FieldAddressLevel3,
	FieldAddressLevel2,
	FieldAddressLevel1,
	FieldPostalCode,
	FieldCountry,
	FieldTel,
	FieldEmail,
}

// MandatoryFields must be present on every locally written address.
var MandatoryFields = []FieldName{FieldStreetAddress, FieldCountry}

// DefaultDedupeFields is the conservative identity used to spot the same
// physical address entered on two devices.
var DefaultDedupeFields = []FieldName{FieldStreetAddress, FieldPostalCode, FieldCountry}

// Valid reports whether f names an address field exactly.
func (f FieldName) Valid() bool {
	for _, known := range AllFields {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFieldName validates a field name read from config or a request.
func ParseFieldName(s string) (FieldName, error) {
	name := FieldName(strings.TrimSpace(s))
	if name.Valid() {
		return name, nil
	}
	return "", fmt.Errorf("unknown address field %q", s)
}

// ParseFieldNames parses a list of field names, rejecting duplicates.
func ParseFieldNames(names []string) ([]FieldName, error) {
	seen := make(map[FieldName]bool, len(names))
	fields := make([]FieldName, 0, len(names))
	for _, n := range names {
		f, err := ParseFieldName(n)
		if err != nil {
			return nil, err
		}
		if seen[f] {
			return nil, fmt.Errorf("duplicate address field %q", n)
		}
		seen[f] = true
		fields = append(fields, f)
	}
	return fields, nil
}

// ptr returns the address of the struct field named by f.
func (a *Address) ptr(f FieldName) **string {
	switch f {
	case FieldFullName:
		return &a.Name
	case FieldOrganization:
		return &a.Organization
	case FieldStreetAddress:
		return &a.StreetAddress
	case FieldAddressLevel3:
		return &a.AddressLevel3
	case FieldAddressLevel2:
		return &a.AddressLevel2
	case FieldAddressLevel1:
		return &a.AddressLevel1
	case FieldPostalCode:
		return &a.PostalCode
	case FieldCountry:
		return &a.Country
	case FieldTel:
		return &a.Tel
	case FieldEmail:
		return &a.Email
	}
	panic(fmt.Sprintf("model: unknown field %q", f))
}

// Get returns the value of field f (nil when absent).
func (a Address) Get(f FieldName) *string {
	return *a.ptr(f)
}

// Set replaces field f with a copy of v.
func (a *Address) Set(f FieldName, v *string) {
	if v != nil {
		v = String(*v)
	}
	*a.ptr(f) = v
}

// Clone returns a copy that shares no string pointers with a.
func (a Address) Clone() Address {
	var out Address
	for _, f := range AllFields {
		out.Set(f, a.Get(f))
	}
	return out
}

// Equal is exact equality: an absent field differs from an empty one.
func (a Address) Equal(b Address) bool {
	for _, f := range AllFields {
		if !exactEqual(a.Get(f), b.Get(f)) {
			return false
		}
	}
	return true
}

// EqualOn applies FieldEqual over the given fields.
func (a Address) EqualOn(b Address, fields []FieldName) bool {
	for _, f := range fields {
		if !FieldEqual(a.Get(f), b.Get(f)) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one of fields holds a non-empty value.
func (a Address) HasAny(fields []FieldName) bool {
	for _, f := range fields {
		if !IsBlank(a.Get(f)) {
			return true
		}
	}
	return false
}

// MissingMandatory returns the first mandatory field that is absent, or "".
func (a Address) MissingMandatory() FieldName {
	for _, f := range MandatoryFields {
		if a.Get(f) == nil {
			return f
		}
	}
	return ""
}

// FieldEqual is the dedupe predicate: absent and "" compare equal,
// everything else is exact string equality.
func FieldEqual(a, b *string) bool {
	return value(a) == value(b)
}

// IsBlank reports whether v is absent or empty.
func IsBlank(v *string) bool {
	return v == nil || *v == ""
}

func exactEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func value(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// Patch is a partial update keyed by field. A key mapped to nil clears the field.
type Patch map[FieldName]*string

// Apply returns a copy of a with the patch applied.
func (p Patch) Apply(a Address) Address {
	out := a.Clone()
	for f, v := range p {
		out.Set(f, v)
	}
	return out
}
