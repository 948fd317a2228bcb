package exchange

import "github.com/machinefabric/tncharness-go/tnc"

// Registration holds the message types one plugin has asked to receive.
// Each report replaces the previous list of that category.
type Registration struct {
	basic    []tnc.MessageType
	extended []ExtendedType
}

// ReportBasic replaces the basic type list
func (r *Registration) ReportBasic(types []tnc.MessageType) {
	r.basic = append([]tnc.MessageType(nil), types...)
}

// ReportExtended replaces the extended type list from parallel vendor and
// subtype lists. Lists of different length are rejected and the previous
// registration is kept.
func (r *Registration) ReportExtended(vendors []tnc.VendorID, subtypes []tnc.Subtype) error {
	if len(vendors) != len(subtypes) {
		return tnc.Errorf(tnc.ErrorTypeInvalidParameter, "%d vendor ids but %d subtypes", len(vendors), len(subtypes))
	}
	list := make([]ExtendedType, len(vendors))
	for i := range vendors {
		list[i] = ExtendedType{Vendor: vendors[i], Subtype: subtypes[i]}
	}
	r.extended = list
	return nil
}

// AcceptsBasic checks mt against the basic list
func (r *Registration) AcceptsBasic(mt tnc.MessageType) bool {
	return IsBasicTypeAccepted(r.basic, mt)
}

// AcceptsExtended checks (vendor, subtype) against the extended list
func (r *Registration) AcceptsExtended(vendor tnc.VendorID, subtype tnc.Subtype) bool {
	return IsExtendedTypeAccepted(r.extended, vendor, subtype)
}

// Basic returns a copy of the basic list
func (r *Registration) Basic() []tnc.MessageType {
	return append([]tnc.MessageType(nil), r.basic...)
}

// Extended returns a copy of the extended list
func (r *Registration) Extended() []ExtendedType {
	return append([]ExtendedType(nil), r.extended...)
}

// Release drops both lists
func (r *Registration) Release() {
	r.basic = nil
	r.extended = nil
}
