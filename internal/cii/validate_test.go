package cii_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/facturx/internal/cii"
	"github.com/rezonia/facturx/internal/model"
)

const ciiOpen = `<?xml version="1.0" encoding="UTF-8"?>
<rsm:CrossIndustryInvoice xmlns:rsm="urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
  xmlns:ram="urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"
  xmlns:udt="urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100">`

const (
	ciiContext = `<rsm:ExchangedDocumentContext><ram:GuidelineSpecifiedDocumentContextParameter><ram:ID>x</ram:ID></ram:GuidelineSpecifiedDocumentContextParameter></rsm:ExchangedDocumentContext>`
	ciiHeader  = `<rsm:ExchangedDocument><ram:ID>INV-7</ram:ID><ram:IssueDateTime><udt:DateTimeString format="102">20231027</udt:DateTimeString></ram:IssueDateTime></rsm:ExchangedDocument>`
	ciiSeller  = `<ram:SellerTradeParty><ram:Name>Seller SA</ram:Name></ram:SellerTradeParty>`
	ciiBuyer   = `<ram:BuyerTradeParty><ram:Name>Buyer SARL</ram:Name></ram:BuyerTradeParty>`
)

func ciiDoc(parts ...string) string {
	return ciiOpen + strings.Join(parts, "") + `</rsm:CrossIndustryInvoice>`
}

func transaction(parties ...string) string {
	return `<rsm:SupplyChainTradeTransaction><ram:ApplicableHeaderTradeAgreement>` +
		strings.Join(parties, "") +
		`</ram:ApplicableHeaderTradeAgreement></rsm:SupplyChainTradeTransaction>`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		xml    string
		status cii.Status
		reason string
	}{
		{
			name:   "valid",
			xml:    ciiDoc(ciiContext, ciiHeader, transaction(ciiSeller, ciiBuyer)),
			status: cii.StatusValid,
		},
		{
			name:   "wrong root",
			xml:    `<Invoice><ID>1</ID></Invoice>`,
			status: cii.StatusInvalid,
			reason: "Root element is not CrossIndustryInvoice",
		},
		{
			name:   "missing context",
			xml:    ciiDoc(ciiHeader, transaction(ciiSeller, ciiBuyer)),
			status: cii.StatusInvalid,
			reason: "Missing required element: ExchangedDocumentContext",
		},
		{
			name:   "missing header",
			xml:    ciiDoc(ciiContext, transaction(ciiSeller, ciiBuyer)),
			status: cii.StatusInvalid,
			reason: "Missing required element: ExchangedDocument",
		},
		{
			name:   "missing transaction",
			xml:    ciiDoc(ciiContext, ciiHeader),
			status: cii.StatusInvalid,
			reason: "Missing required element: SupplyChainTradeTransaction",
		},
		{
			name:   "empty transaction",
			xml:    ciiDoc(ciiContext, ciiHeader, `<rsm:SupplyChainTradeTransaction>  </rsm:SupplyChainTradeTransaction>`),
			status: cii.StatusInvalid,
			reason: "Empty required element: SupplyChainTradeTransaction",
		},
		{
			name:   "missing invoice id",
			xml:    ciiDoc(ciiContext, `<rsm:ExchangedDocument><ram:TypeCode>380</ram:TypeCode><ram:ID> </ram:ID></rsm:ExchangedDocument>`, transaction(ciiSeller, ciiBuyer)),
			status: cii.StatusInvalid,
			reason: "Missing invoice ID (ExchangedDocument/ID)",
		},
		{
			name:   "missing seller",
			xml:    ciiDoc(ciiContext, ciiHeader, transaction(ciiBuyer)),
			status: cii.StatusInvalid,
			reason: "Missing seller name",
		},
		{
			name:   "missing buyer",
			xml:    ciiDoc(ciiContext, ciiHeader, transaction(ciiSeller)),
			status: cii.StatusInvalid,
			reason: "Missing buyer name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cii.Validate(tt.xml)
			assert.Equal(t, tt.status, result.Status, "reason: %s", result.Reason)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}
}

func TestValidate_Malformed(t *testing.T) {
	for _, xml := range []string{"", "not xml at all", "<rsm:CrossIndustryInvoice>", "<a></b>"} {
		result := cii.Validate(xml)
		assert.Equal(t, cii.StatusMalformed, result.Status, "xml=%q", xml)
		assert.True(t, strings.HasPrefix(result.Reason, "XML syntax error: "), "reason=%q", result.Reason)
		assert.False(t, result.Valid())
	}
}

func TestValidationResult_Err(t *testing.T) {
	result := cii.Validate(ciiDoc(ciiContext, ciiHeader))
	err := result.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidationFailure)

	var me *model.Error
	require.ErrorAs(t, err, &me)
	assert.Contains(t, me.Reason, "SupplyChainTradeTransaction")
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "valid", cii.StatusValid.String())
	assert.Equal(t, "invalid", cii.StatusInvalid.String())
	assert.Equal(t, "malformed", cii.StatusMalformed.String())
	assert.Equal(t, "unknown", cii.Status(99).String())
}
