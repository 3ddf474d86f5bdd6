package facturx_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/facturx/internal/cii"
	"github.com/rezonia/facturx/internal/facturx"
	"github.com/rezonia/facturx/internal/finance"
	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/render"
)

var now = time.Date(2023, 10, 27, 9, 30, 0, 0, time.UTC)

func fixture(t *testing.T) (pdf []byte, xml string) {
	t.Helper()
	d := &model.Draft{
		Number: "FV-2023-001",
		Date:   model.NewDate(2023, 10, 27),
		Seller: model.Party{Name: "My Company", Address: model.Address{Street: "1 Rue", ZipCode: "75001", City: "Paris", CountryCode: "FR"}},
		Buyer:  model.Party{Name: "Client Corp", Address: model.Address{Street: "2 Rue", ZipCode: "69002", City: "Lyon", CountryCode: "FR"}},
		Items: []model.LineItem{
			{Description: "Consulting", Quantity: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(100), VATRate: decimal.NewFromInt(20)},
		},
	}
	totals := finance.Aggregate(d.Items)

	pdf, err := render.NewMarotoRenderer().RenderInvoice(context.Background(), d, totals)
	require.NoError(t, err)
	xml, err = cii.NewSynthesizer(clockwork.NewFakeClockAt(now)).Synthesize(d, totals)
	require.NoError(t, err)
	return pdf, xml
}

func composer() *facturx.Composer {
	return facturx.NewComposer(facturx.WithClock(clockwork.NewFakeClockAt(now)))
}

func TestCompose_RoundTrip(t *testing.T) {
	pdf, xml := fixture(t)

	out, err := composer().Compose(pdf, xml, "FV-2023-001")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	got, name, found := facturx.ExtractXML(out)
	require.True(t, found)
	assert.Equal(t, facturx.AttachmentName, name)
	assert.Equal(t, xml, got)
	assert.True(t, cii.Validate(got).Valid())
}

func TestCompose_Markers(t *testing.T) {
	pdf, xml := fixture(t)

	out, err := composer().Compose(pdf, xml, "FV-2023-001")
	require.NoError(t, err)

	info, err := facturx.Inspect(out)
	require.NoError(t, err)
	assert.True(t, info.HasMetadata)
	assert.Contains(t, info.Attachments, facturx.AttachmentName)
	require.Len(t, info.AssociatedFiles, 1)
	assert.Equal(t, facturx.RelationshipData, info.AssociatedFiles[0].Relationship)
	assert.Equal(t, facturx.StreamSubtype, info.AssociatedFiles[0].Subtype)

	// the XMP stream is stored unfiltered
	assert.Contains(t, string(out), "<pdfaid:part>3</pdfaid:part>")
	assert.Contains(t, string(out), "<pdfaid:conformance>B</pdfaid:conformance>")
	assert.Contains(t, string(out), "<fx:DocumentFileName>factur-x.xml</fx:DocumentFileName>")
	assert.Contains(t, string(out), "<fx:ConformanceLevel>BASIC</fx:ConformanceLevel>")
}

func TestCompose_TitleEscaped(t *testing.T) {
	pdf, xml := fixture(t)
	title := `R&D <Q4> "final"`

	out, err := composer().Compose(pdf, xml, title)
	require.NoError(t, err)

	start := bytes.Index(out, []byte("<x:xmpmeta"))
	end := bytes.Index(out, []byte("</x:xmpmeta>"))
	require.True(t, start >= 0 && end > start, "XMP packet not found")

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out[start:end+len("</x:xmpmeta>")]))
	li := doc.FindElement("//dc:title/rdf:Alt/rdf:li")
	require.NotNil(t, li)
	assert.Equal(t, title, li.Text())
	assert.Equal(t, "x-default", li.SelectAttrValue("xml:lang", ""))
	assert.Contains(t, string(out), "R&amp;D &lt;Q4&gt;")
}

func TestCompose_Failures(t *testing.T) {
	pdf, xml := fixture(t)

	tests := []struct {
		name string
		pdf  []byte
		xml  string
	}{
		{"empty pdf", nil, xml},
		{"not a pdf", []byte("hello"), xml},
		{"empty xml", pdf, "  "},
		{"malformed xml", pdf, "<rsm:CrossIndustryInvoice>"},
		{"invalid utf8", pdf, string([]byte{0xff, 0xfe, '<', 'a', '/', '>'})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := composer().Compose(tt.pdf, tt.xml, "x")
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, model.ErrEmbeddingFailure)
		})
	}
}

func TestExtractXML_NoDocument(t *testing.T) {
	pdf, _ := fixture(t)

	tests := map[string][]byte{
		"plain pdf":  pdf,
		"not a pdf":  []byte("%PDF-garbage"),
		"empty":      nil,
		"random txt": []byte("just some text"),
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			xml, _, found := facturx.ExtractXML(input)
			assert.False(t, found)
			assert.Empty(t, xml)
		})
	}
}

func TestInspect_NotAPDF(t *testing.T) {
	_, err := facturx.Inspect([]byte("nope"))
	assert.Error(t, err)
}
