package exchange

import "github.com/machinefabric/tncharness-go/tnc"

// ExtendedType is one (vendor, subtype) entry of an extended registration
type ExtendedType struct {
	Vendor  tnc.VendorID
	Subtype tnc.Subtype
}

// typeMatches applies the four-way wildcard rule of one registration entry.
// Wildcards only ever appear on the registration side.
func typeMatches(regVendor tnc.VendorID, regSubtype tnc.Subtype, vendor tnc.VendorID, subtype tnc.Subtype) bool {
	vendorOK := regVendor == vendor || regVendor == tnc.VendorAny
	subtypeOK := regSubtype == subtype || regSubtype == tnc.SubtypeAny
	return vendorOK && subtypeOK
}

// IsBasicTypeAccepted reports whether mt matches any registered basic type
func IsBasicTypeAccepted(registered []tnc.MessageType, mt tnc.MessageType) bool {
	vendor, subtype := mt.Vendor(), mt.Subtype()
	for _, reg := range registered {
		if typeMatches(reg.Vendor(), reg.Subtype(), vendor, subtype) {
			return true
		}
	}
	return false
}

// IsExtendedTypeAccepted reports whether (vendor, subtype) matches any
// registered extended type
func IsExtendedTypeAccepted(registered []ExtendedType, vendor tnc.VendorID, subtype tnc.Subtype) bool {
	for _, reg := range registered {
		if typeMatches(reg.Vendor, reg.Subtype, vendor, subtype) {
			return true
		}
	}
	return false
}
