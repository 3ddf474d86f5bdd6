package cii_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/facturx/internal/cii"
)

func TestCompile_Errors(t *testing.T) {
	tests := []string{
		"",
		"ram:ID",
		"//ID",
		"//ram:",
		"//ram:ID[@schemeID=VA]",
		"//ram:ID[@schemeID='VA'",
		"//ram:ID[schemeID='VA']",
		"//ram:ID[@schemeID='VA']x",
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := cii.Compile(expr)
			assert.Error(t, err)
		})
	}
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() { cii.MustCompile("nope") })
}

const prefixedDoc = `<?xml version="1.0"?>
<x:CrossIndustryInvoice xmlns:x="urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
    xmlns:y="urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100">
  <x:ExchangedDocument><y:ID>F-1</y:ID></x:ExchangedDocument>
  <x:SupplyChainTradeTransaction>
    <y:SellerTradeParty>
      <y:Name>Seller</y:Name>
      <y:SpecifiedTaxRegistration><y:ID schemeID="FC">123</y:ID></y:SpecifiedTaxRegistration>
      <y:SpecifiedTaxRegistration><y:ID schemeID="VA">FR1</y:ID></y:SpecifiedTaxRegistration>
    </y:SellerTradeParty>
  </x:SupplyChainTradeTransaction>
</x:CrossIndustryInvoice>`

func TestLocator_ResolvesByNamespaceNotPrefix(t *testing.T) {
	doc, err := cii.Parse(prefixedDoc)
	require.NoError(t, err)
	root := doc.Root()
	ns := cii.ResolveNamespaces(root)

	got, ok := cii.MustCompile("//rsm:ExchangedDocument/ram:ID").Text(root, ns)
	require.True(t, ok)
	assert.Equal(t, "F-1", got)

	got, ok = cii.MustCompile("//y:SellerTradeParty/y:Name").Text(root, ns)
	require.True(t, ok)
	assert.Equal(t, "Seller", got)
}

func TestLocator_Predicate(t *testing.T) {
	doc, err := cii.Parse(prefixedDoc)
	require.NoError(t, err)
	root := doc.Root()
	ns := cii.ResolveNamespaces(root)

	got, ok := cii.MustCompile("//ram:SpecifiedTaxRegistration/ram:ID[@schemeID='VA']").Text(root, ns)
	require.True(t, ok)
	assert.Equal(t, "FR1", got)

	all := cii.MustCompile("//ram:SpecifiedTaxRegistration/ram:ID").FindAll(root, ns)
	assert.Len(t, all, 2)
}

func TestLocator_AbsolutePath(t *testing.T) {
	doc, err := cii.Parse(prefixedDoc)
	require.NoError(t, err)
	root := doc.Root()
	ns := cii.ResolveNamespaces(root)

	assert.NotNil(t, cii.MustCompile("/rsm:CrossIndustryInvoice/rsm:ExchangedDocument").Find(root, ns))
	assert.Nil(t, cii.MustCompile("/rsm:ExchangedDocument").Find(root, ns))
}

func TestLocator_DefaultNamespace(t *testing.T) {
	const xml = `<CrossIndustryInvoice xmlns="urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100">
  <ExchangedDocument><ID xmlns="urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100">D-9</ID></ExchangedDocument>
</CrossIndustryInvoice>`

	doc, err := cii.Parse(xml)
	require.NoError(t, err)
	root := doc.Root()
	ns := cii.ResolveNamespaces(root)

	_, hasEmpty := ns[""]
	assert.False(t, hasEmpty, "default namespace must not be mapped to an empty prefix")

	got, ok := cii.MustCompile("//rsm:ExchangedDocument/ram:ID").Text(root, ns)
	require.True(t, ok)
	assert.Equal(t, "D-9", got)
}

func TestLocator_WrongNamespaceDoesNotMatch(t *testing.T) {
	const xml = `<r:CrossIndustryInvoice xmlns:r="urn:other">
  <r:ExchangedDocument/>
</r:CrossIndustryInvoice>`

	doc, err := cii.Parse(xml)
	require.NoError(t, err)
	root := doc.Root()

	assert.Nil(t, cii.MustCompile("//rsm:ExchangedDocument").Find(root, cii.ResolveNamespaces(root)))
}

func TestLocator_UnknownPrefix(t *testing.T) {
	doc, err := cii.Parse(prefixedDoc)
	require.NoError(t, err)
	root := doc.Root()

	assert.Nil(t, cii.MustCompile("//zz:ExchangedDocument").Find(root, cii.ResolveNamespaces(root)))
}

func TestResolveNamespaces_DocumentWins(t *testing.T) {
	const xml = `<ram:Root xmlns:ram="urn:custom"/>`
	doc, err := cii.Parse(xml)
	require.NoError(t, err)

	ns := cii.ResolveNamespaces(doc.Root())
	assert.Equal(t, "urn:custom", ns["ram"])
	assert.Equal(t, cii.NamespaceRSM, ns["rsm"])
}
