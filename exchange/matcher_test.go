package exchange

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machinefabric/tncharness-go/tnc"
)

func TestBasicTypeExactMatch(t *testing.T) {
	list := []tnc.MessageType{okType}
	assert.True(t, IsBasicTypeAccepted(list, okType))
	assert.False(t, IsBasicTypeAccepted(list, okType+1))
	assert.False(t, IsBasicTypeAccepted(list, tnc.NewMessageType(tnc.VendorTCG, 254)))

	list = []tnc.MessageType{0x00559700}
	assert.True(t, IsBasicTypeAccepted(list, 0x00559700))
	assert.False(t, IsBasicTypeAccepted(list, 0x00550001))
}

func TestBasicTypeWildcards(t *testing.T) {
	target := tnc.NewMessageType(0x1234, 0x56)

	cases := []struct {
		name string
		reg  tnc.MessageType
		want bool
	}{
		{"any vendor same subtype", tnc.NewMessageType(tnc.VendorAny, 0x56), true},
		{"any vendor other subtype", tnc.NewMessageType(tnc.VendorAny, 0x57), false},
		{"same vendor any subtype", tnc.NewMessageType(0x1234, tnc.SubtypeAny), true},
		{"other vendor any subtype", tnc.NewMessageType(0x1235, tnc.SubtypeAny), false},
		{"any vendor any subtype", tnc.NewMessageType(tnc.VendorAny, tnc.SubtypeAny), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsBasicTypeAccepted([]tnc.MessageType{c.reg}, target))
		})
	}
}

func TestEmptyRegistrationAcceptsNothing(t *testing.T) {
	assert.False(t, IsBasicTypeAccepted(nil, okType))
	assert.False(t, IsBasicTypeAccepted([]tnc.MessageType{}, tnc.NewMessageType(tnc.VendorAny, tnc.SubtypeAny)))
	assert.False(t, IsExtendedTypeAccepted(nil, tnc.VendorTCGNew, 1))
}

func TestExtendedTypeMatching(t *testing.T) {
	list := []ExtendedType{
		{Vendor: 0x1234, Subtype: 0x01},
		{Vendor: tnc.VendorAny, Subtype: 0x09},
	}
	assert.True(t, IsExtendedTypeAccepted(list, 0x1234, 0x01))
	assert.False(t, IsExtendedTypeAccepted(list, 0x1234, 0x02))
	assert.True(t, IsExtendedTypeAccepted(list, 0xabcdef, 0x09))
	assert.True(t, IsExtendedTypeAccepted([]ExtendedType{{Vendor: 0x1234, Subtype: tnc.SubtypeAny}}, 0x1234, 0x77))
}

func TestWildcardInMessageIsNotAWildcard(t *testing.T) {
	list := []tnc.MessageType{tnc.NewMessageType(0x1234, 0x01)}
	assert.False(t, IsBasicTypeAccepted(list, tnc.NewMessageType(tnc.VendorAny, tnc.SubtypeAny)))
}

func TestRegistrationReplacesOnReport(t *testing.T) {
	var r Registration
	r.ReportBasic([]tnc.MessageType{okType})
	assert.True(t, r.AcceptsBasic(okType))

	r.ReportBasic(nil)
	assert.False(t, r.AcceptsBasic(okType), "last report wins")

	require.NoError(t, r.ReportExtended([]tnc.VendorID{1, 2}, []tnc.Subtype{3, 4}))
	assert.Equal(t, []ExtendedType{{1, 3}, {2, 4}}, r.Extended())

	err := r.ReportExtended([]tnc.VendorID{5}, nil)
	assert.True(t, errors.Is(err, tnc.ErrInvalidParameter))
	assert.True(t, r.AcceptsExtended(2, 4), "rejected report keeps the previous list")

	r.Release()
	assert.Empty(t, r.Basic())
	assert.Empty(t, r.Extended())
}

func TestRegistrationCopiesReportedSlice(t *testing.T) {
	var r Registration
	types := []tnc.MessageType{okType}
	r.ReportBasic(types)
	types[0] = 0
	assert.True(t, r.AcceptsBasic(okType))
}
