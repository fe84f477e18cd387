package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierOrdering(t *testing.T) {
	assert.True(t, KYCTierAAA.Includes(KYCTierSepa))
	assert.True(t, KYCTierSepa.Includes(KYCTierBase))
	assert.True(t, KYCTierBase.Includes(KYCTierBase))
	assert.False(t, KYCTierBase.Includes(KYCTierSepa))
	assert.False(t, KYCTier("gold").Includes(KYCTierBase))
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" SEPA ")
	require.NoError(t, err)
	assert.Equal(t, KYCTierSepa, tier)

	_, err = ParseTier("platinum")
	assert.Error(t, err)
}

func TestStatusesFromRecords(t *testing.T) {
	statuses := StatusesFromRecords([]*KYCRecord{
		{KYCType: KYCTierBase, Status: StatusValidated},
		{KYCType: KYCTierAAA, Status: StatusRejected},
	})

	assert.Equal(t, StatusValidated, statuses[KYCTierBase])
	assert.Equal(t, StatusNotSubmitted, statuses[KYCTierSepa])
	assert.Equal(t, StatusRejected, statuses[KYCTierAAA])
}

func TestToDataRoundTripsComposedShape(t *testing.T) {
	in := AaaData{
		SepaData: SepaData{
			BaseData: BaseData{FullName: "Ana Gomez", Country: "ES"},
			IBAN:     "ES9121000418450200051332",
		},
		AMLScreeningResult: AMLResultOK,
	}

	data, err := ToData(in)
	require.NoError(t, err)
	assert.Equal(t, "Ana Gomez", data[FieldFullName])
	assert.Equal(t, "OK", data[FieldAMLScreeningResult])
	_, hasDate := data[FieldAMLScreeningDate]
	assert.False(t, hasDate)

	assert.Equal(t, in, data.Decode())
}

func TestDecodeIgnoresWrongTypes(t *testing.T) {
	d := KYCData{FieldFullName: 42, FieldEmail: "a@b.co"}
	out := d.Decode()
	assert.Empty(t, out.FullName)
	assert.Equal(t, "a@b.co", out.Email)
}

func TestCountries(t *testing.T) {
	c, ok := CountryByCode("de")
	require.True(t, ok)
	assert.Equal(t, "Germany", c.Name)
	assert.True(t, IsSEPACountry("GB"))
	assert.False(t, IsSEPACountry("AR"))
	assert.False(t, IsSEPACountry("XX"))
}

func TestEventForStatus(t *testing.T) {
	assert.Equal(t, EventKYCValidated, EventForStatus(StatusValidated))
	assert.Equal(t, EventKYCRejected, EventForStatus(StatusRejected))
	assert.Equal(t, EventKYCUpdated, EventForStatus(StatusPending))
	assert.True(t, ValidEvent("kyc.updated"))
	assert.False(t, ValidEvent("kyc.deleted"))
}
