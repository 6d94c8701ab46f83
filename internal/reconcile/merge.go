package reconcile

import "addrstore/internal/model"

// mergeTwoWay combines a local record with a remote one when there is no
// common ancestor. Any field the local side holds a value for is kept;
// blanks are filled from the remote side.
func mergeTwoWay(guid string, local, remote *model.AddressRecord) *model.AddressRecord {
	out := &model.AddressRecord{GUID: guid}
	for _, f := range model.AllFields {
		l := local.Address.Get(f)
		if model.IsBlank(l) {
			out.Address.Set(f, remote.Address.Get(f))
		} else {
			out.Address.Set(f, l)
		}
	}
	out.Metadata = model.Metadata{
		TimeCreated:      minTimestamp(local.TimeCreated, remote.TimeCreated),
		TimeLastUsed:     maxTimestamp(local.TimeLastUsed, remote.TimeLastUsed),
		TimeLastModified: maxTimestamp(local.TimeLastModified, remote.TimeLastModified),
		TimesUsed:        max(local.TimesUsed, remote.TimesUsed),
	}
	return out
}

// mergeThreeWay merges local and remote edits made since mirror. A field
// the user changed locally keeps the local value even if the remote side
// changed it too; untouched fields take the remote value.
func mergeThreeWay(local, mirror, remote *model.AddressRecord) *model.AddressRecord {
	out := &model.AddressRecord{GUID: local.GUID}
	for _, f := range model.AllFields {
		l, m := local.Address.Get(f), mirror.Address.Get(f)
		if sameValue(l, m) {
			out.Address.Set(f, remote.Address.Get(f))
		} else {
			out.Address.Set(f, l)
		}
	}

	used := local.TimesUsed
	if delta := remote.TimesUsed - mirror.TimesUsed; delta > 0 {
		used += delta
	}
	out.Metadata = model.Metadata{
		TimeCreated:      minTimestamp(local.TimeCreated, remote.TimeCreated),
		TimeLastUsed:     maxTimestamp(local.TimeLastUsed, remote.TimeLastUsed),
		TimeLastModified: maxTimestamp(local.TimeLastModified, remote.TimeLastModified),
		TimesUsed:        used,
	}
	return out
}

// sameValue is exact equality; clearing a field counts as an edit.
func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameContent compares everything but the guid.
func sameContent(a, b *model.AddressRecord) bool {
	return a.Address.Equal(b.Address) && a.Metadata == b.Metadata
}

func minTimestamp(a, b model.Timestamp) model.Timestamp {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	return min(a, b)
}

func maxTimestamp(a, b model.Timestamp) model.Timestamp {
	return max(a, b)
}
