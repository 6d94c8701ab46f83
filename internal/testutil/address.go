package testutil

import "addrstore/internal/model"

// Address returns a complete address that passes local validation.
func Address(street, city string) model.Address {
	return model.Address{
		Name:          model.String("Jane Doe"),
		StreetAddress: model.String(street),
		AddressLevel2: model.String(city),
		AddressLevel1: model.String("IL"),
		PostalCode:    model.String("62701"),
		Country:       model.String("US"),
		Tel:           model.String("+1-555-0100"),
	}
}

// RemoteRecord returns a record as a remote service would deliver it.
func RemoteRecord(guid, street, city string, ts model.Timestamp) *model.AddressRecord {
	return &model.AddressRecord{
		GUID:    guid,
		Address: Address(street, city),
		Metadata: model.Metadata{
			TimeCreated:      ts,
			TimeLastUsed:     ts,
			TimeLastModified: ts,
		},
	}
}
