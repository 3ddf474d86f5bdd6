package processor_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/facturx/internal/facturx"
	"github.com/rezonia/facturx/internal/finance"
	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/processor"
	"github.com/rezonia/facturx/internal/render"
	"github.com/rezonia/facturx/internal/storage"
)

var fixedNow = time.Date(2023, 10, 27, 9, 30, 0, 0, time.UTC)

func sampleDraft() *model.Draft {
	return &model.Draft{
		Number: "FV-2023-001",
		Date:   model.NewDate(2023, 10, 27),
		Seller: model.Party{
			Name:    "My Company",
			Address: model.Address{Street: "1 Rue de la Paix", ZipCode: "75001", City: "Paris", CountryCode: "FR"},
			VATID:   "FR12345678901",
		},
		Buyer: model.Party{
			Name:    "Client Corp",
			Address: model.Address{Street: "2 Avenue Foch", ZipCode: "69002", City: "Lyon", CountryCode: "FR"},
		},
		Items: []model.LineItem{
			{Description: "Consulting", Quantity: decimal.NewFromInt(5), UnitPrice: decimal.RequireFromString("100.0"), VATRate: decimal.RequireFromString("20.0")},
			{Description: "Hosting", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("50.0"), VATRate: decimal.RequireFromString("20.0")},
		},
	}
}

func newService(t *testing.T, opts ...processor.Option) (*processor.Service, storage.Gateway) {
	t.Helper()
	store := storage.NewObjectStore(storage.NewMemoryBucket())
	opts = append([]processor.Option{processor.WithClock(clockwork.NewFakeClockAt(fixedNow))}, opts...)
	return processor.NewService(store, opts...), store
}

// foreignInvoice produces a Factur-X PDF and its XML from an unrelated service
func foreignInvoice(t *testing.T, d *model.Draft) *model.Bundle {
	t.Helper()
	svc, _ := newService(t)
	b, err := svc.Create(context.Background(), d)
	require.NoError(t, err)
	return b
}

func listLen(t *testing.T, store storage.Gateway) int {
	t.Helper()
	list, err := store.List(context.Background())
	require.NoError(t, err)
	return len(list)
}

type stubRenderer struct {
	invoice []byte
	err     error
}

func (r stubRenderer) RenderInvoice(context.Context, *model.Draft, finance.Totals) ([]byte, error) {
	return r.invoice, r.err
}

func (r stubRenderer) RenderPlaceholder(context.Context, model.Metadata) ([]byte, error) {
	return nil, r.err
}

type recordingSender struct {
	sent []model.Metadata
	err  error
}

func (s *recordingSender) Send(_ context.Context, md model.Metadata) error {
	s.sent = append(s.sent, md)
	return s.err
}

type failingCreateStore struct {
	storage.Gateway
}

func (failingCreateStore) Create(context.Context, *model.Bundle) error {
	return model.NewPersistenceFailure("create", errors.New("disk full"))
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	b, err := svc.Create(ctx, sampleDraft())
	require.NoError(t, err)
	assert.Equal(t, "FV-2023-001", b.ID)
	assert.True(t, bytes.HasPrefix(b.PDF, []byte("%PDF-")))

	md := b.Metadata
	assert.Equal(t, "550.00", md.TotalHT.StringFixed(2))
	assert.Equal(t, "110.00", md.TotalTax.StringFixed(2))
	assert.Equal(t, "660.00", md.TotalTTC.StringFixed(2))
	assert.Equal(t, "EUR", md.Currency)
	assert.Equal(t, "2023-10-27", md.Date)
	assert.Equal(t, "2023-10-27T09:30:00Z", md.CreatedAt)
	assert.Equal(t, model.SourceGenerated, md.Source)
	assert.Equal(t, "1 Rue de la Paix, 75001 Paris, FR", md.SellerAddress)

	stored, err := store.Get(ctx, "FV-2023-001")
	require.NoError(t, err)
	xml, name, found := facturx.ExtractXML(stored.PDF)
	require.True(t, found)
	assert.Equal(t, facturx.AttachmentName, name)
	assert.Equal(t, stored.XML, xml)
}

func TestCreate_ReplacesExisting(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	_, err := svc.Create(ctx, sampleDraft())
	require.NoError(t, err)
	d := sampleDraft()
	d.Buyer.Name = "Other Client"
	_, err = svc.Create(ctx, d)
	require.NoError(t, err)

	md, err := store.Metadata(ctx, "FV-2023-001")
	require.NoError(t, err)
	assert.Equal(t, "Other Client", md.BuyerName)
	assert.Equal(t, 1, listLen(t, store))
}

func TestCreate_InvalidDraft(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	d := sampleDraft()
	d.Items = nil
	_, err := svc.Create(ctx, d)
	assert.ErrorIs(t, err, model.ErrInvalidDraft)

	d = sampleDraft()
	d.Number = "///"
	_, err = svc.Create(ctx, d)
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)

	_, err = svc.Create(ctx, nil)
	assert.ErrorIs(t, err, model.ErrInvalidDraft)
	assert.Zero(t, listLen(t, store))
}

func TestCreate_EmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	broken := stubRenderer{invoice: []byte("not a pdf")}

	svc, store := newService(t, processor.WithRenderer(broken))
	_, err := svc.Create(ctx, sampleDraft())
	assert.ErrorIs(t, err, model.ErrEmbeddingFailure)
	assert.Zero(t, listLen(t, store))

	svc, store = newService(t, processor.WithRenderer(broken), processor.WithPlainFallback(true))
	b, err := svc.Create(ctx, sampleDraft())
	require.NoError(t, err)
	assert.Equal(t, []byte("not a pdf"), b.PDF)
	assert.Equal(t, 1, listLen(t, store))
}

func TestCreate_RenderFailure(t *testing.T) {
	svc, store := newService(t, processor.WithRenderer(stubRenderer{err: model.NewRenderFailure(errors.New("font missing"))}))
	_, err := svc.Create(context.Background(), sampleDraft())
	assert.ErrorIs(t, err, model.ErrRenderFailure)
	assert.Zero(t, listLen(t, store))
}

func TestUpload_PDF(t *testing.T) {
	ctx := context.Background()
	src := foreignInvoice(t, sampleDraft())
	svc, store := newService(t)

	md, err := svc.Upload(ctx, "invoice.pdf", src.PDF)
	require.NoError(t, err)
	assert.Equal(t, "FV-2023-001", md.ID)
	assert.Equal(t, "My Company", md.SellerName)
	assert.Equal(t, "Client Corp", md.BuyerName)
	assert.Equal(t, "660.00", md.TotalTTC.StringFixed(2))
	assert.Equal(t, model.SourceUpload, md.Source)
	assert.Equal(t, "2023-10-27T09:30:00Z", md.CreatedAt)

	stored, err := store.Get(ctx, "FV-2023-001")
	require.NoError(t, err)
	assert.Equal(t, src.PDF, stored.PDF)
	assert.Equal(t, src.XML, stored.XML)
}

func TestUpload_XMLRendersPlaceholder(t *testing.T) {
	ctx := context.Background()
	src := foreignInvoice(t, sampleDraft())
	svc, _ := newService(t)

	_, err := svc.Upload(ctx, "factur-x.XML", []byte(src.XML))
	require.NoError(t, err)

	pdf, err := svc.Get(ctx, "FV-2023-001", model.RepresentationPDF)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))

	xml, _, found := facturx.ExtractXML(pdf)
	require.True(t, found)
	assert.Equal(t, src.XML, xml)

	raw, err := svc.Get(ctx, "FV-2023-001", model.RepresentationXML)
	require.NoError(t, err)
	assert.Equal(t, src.XML, string(raw))
}

func TestUpload_Duplicate(t *testing.T) {
	ctx := context.Background()
	src := foreignInvoice(t, sampleDraft())

	t.Run("after upload", func(t *testing.T) {
		svc, store := newService(t)
		_, err := svc.Upload(ctx, "a.pdf", src.PDF)
		require.NoError(t, err)
		_, err = svc.Upload(ctx, "b.xml", []byte(src.XML))
		assert.ErrorIs(t, err, model.ErrDuplicateInvoice)
		assert.Equal(t, 1, listLen(t, store))
	})

	t.Run("after create", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.Create(ctx, sampleDraft())
		require.NoError(t, err)
		_, err = svc.Upload(ctx, "a.pdf", src.PDF)
		assert.ErrorIs(t, err, model.ErrDuplicateInvoice)
	})
}

func removeElement(t *testing.T, xml, path string) string {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml))
	e := doc.FindElement(path)
	require.NotNil(t, e, path)
	e.Parent().RemoveChild(e)
	out, err := doc.WriteToString()
	require.NoError(t, err)
	return out
}

func TestUpload_Rejections(t *testing.T) {
	src := foreignInvoice(t, sampleDraft())
	plain := plainPDF(t)

	tests := []struct {
		name     string
		filename string
		data     []byte
		want     error
		reason   string
	}{
		{"empty", "a.pdf", nil, model.ErrEmptyUpload, ""},
		{"whitespace", "a.xml", []byte("  \n"), model.ErrEmptyUpload, ""},
		{"text file", "a.txt", []byte(src.XML), model.ErrUnsupportedFileType, ""},
		{"pdf without xml", "a.pdf", plain, model.ErrExtractionFailure, ""},
		{"garbage pdf", "a.pdf", []byte("%PDF-1.7 truncated"), model.ErrExtractionFailure, ""},
		{"not utf8", "a.xml", []byte{0xff, 0xfe, 0x00, '<'}, model.ErrExtractionFailure, ""},
		{"syntax error", "a.xml", []byte("<rsm:CrossIndustryInvoice>"), model.ErrValidationFailure, "XML syntax error"},
		{"wrong root", "a.xml", []byte("<Invoice/>"), model.ErrValidationFailure, "Root element is not CrossIndustryInvoice"},
		{
			"no transaction", "a.xml",
			[]byte(removeElement(t, src.XML, "rsm:CrossIndustryInvoice/rsm:SupplyChainTradeTransaction")),
			model.ErrValidationFailure, "Missing required element: SupplyChainTradeTransaction",
		},
		{
			"no buyer name", "a.xml",
			[]byte(removeElement(t, src.XML, "//ram:BuyerTradeParty/ram:Name")),
			model.ErrValidationFailure, "Missing buyer name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService(t)
			md, err := svc.Upload(context.Background(), tt.filename, tt.data)
			require.Error(t, err)
			assert.Nil(t, md)
			assert.ErrorIs(t, err, tt.want)
			if tt.reason != "" {
				var me *model.Error
				require.ErrorAs(t, err, &me)
				assert.Contains(t, me.Reason, tt.reason)
			}
			assert.Zero(t, listLen(t, store))
		})
	}
}

// plainPDF renders an invoice page without any embedded XML
func plainPDF(t *testing.T) []byte {
	t.Helper()
	d := sampleDraft()
	pdf, err := render.NewMarotoRenderer().RenderInvoice(context.Background(), d, finance.Aggregate(d.Items))
	require.NoError(t, err)
	return pdf
}

func TestUpload_PlainFallbackOnlyCoversCreate(t *testing.T) {
	svc, store := newService(t, processor.WithPlainFallback(true))

	_, err := svc.Upload(context.Background(), "a.pdf", plainPDF(t))
	assert.ErrorIs(t, err, model.ErrExtractionFailure)
	assert.Zero(t, listLen(t, store))
}

func TestUpload_PlaceholderRenderFailure(t *testing.T) {
	src := foreignInvoice(t, sampleDraft())
	svc, store := newService(t, processor.WithRenderer(stubRenderer{err: errors.New("no fonts")}))

	_, err := svc.Upload(context.Background(), "a.xml", []byte(src.XML))
	assert.ErrorIs(t, err, model.ErrRenderFailure)
	assert.Zero(t, listLen(t, store))
}

func TestUpload_PersistenceFailure(t *testing.T) {
	src := foreignInvoice(t, sampleDraft())
	inner := storage.NewObjectStore(storage.NewMemoryBucket())
	svc := processor.NewService(failingCreateStore{inner}, processor.WithClock(clockwork.NewFakeClockAt(fixedNow)))

	_, err := svc.Upload(context.Background(), "a.pdf", src.PDF)
	assert.ErrorIs(t, err, model.ErrPersistenceFailure)
	assert.Zero(t, listLen(t, inner))
}

func TestUpload_SanitizesID(t *testing.T) {
	d := sampleDraft()
	d.Number = "INV 2023/07"
	src := foreignInvoice(t, d)
	svc, _ := newService(t)

	md, err := svc.Upload(context.Background(), "a.pdf", src.PDF)
	require.NoError(t, err)
	assert.Equal(t, "INV202307", md.ID)
}

func TestGetListDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	for _, n := range []string{"B-2", "A-1", "C-3"} {
		d := sampleDraft()
		d.Number = n
		_, err := svc.Create(ctx, d)
		require.NoError(t, err)
	}

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "A-1", list[0].ID)
	assert.Equal(t, "B-2", list[1].ID)
	assert.Equal(t, "C-3", list[2].ID)

	md, err := svc.Metadata(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, "My Company", md.SellerName)

	require.NoError(t, svc.Delete(ctx, "A-1"))
	_, err = svc.Get(ctx, "A-1", model.RepresentationPDF)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "A-1"), model.ErrNotFound)

	_, err = svc.Get(ctx, "../..", model.RepresentationXML)
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
}

func TestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.Create(ctx, sampleDraft())
		require.NoError(t, err)
		err = svc.Send(ctx, "FV-2023-001")
		assert.ErrorIs(t, err, model.ErrRemoteSendFailure)
		assert.ErrorIs(t, err, processor.ErrSenderDisabled)
	})

	t.Run("forwards metadata", func(t *testing.T) {
		snd := &recordingSender{}
		svc, _ := newService(t, processor.WithSender(snd))
		_, err := svc.Create(ctx, sampleDraft())
		require.NoError(t, err)

		require.NoError(t, svc.Send(ctx, "FV-2023-001"))
		require.Len(t, snd.sent, 1)
		assert.Equal(t, "FV-2023-001", snd.sent[0].ID)
	})

	t.Run("not found", func(t *testing.T) {
		snd := &recordingSender{}
		svc, _ := newService(t, processor.WithSender(snd))
		assert.ErrorIs(t, svc.Send(ctx, "nope"), model.ErrNotFound)
		assert.Empty(t, snd.sent)
	})

	t.Run("remote failure", func(t *testing.T) {
		snd := &recordingSender{err: model.NewRemoteSendFailure("remote API returned status 500", nil)}
		svc, _ := newService(t, processor.WithSender(snd))
		_, err := svc.Create(ctx, sampleDraft())
		require.NoError(t, err)
		assert.ErrorIs(t, svc.Send(ctx, "FV-2023-001"), model.ErrRemoteSendFailure)
	})
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected processor.Format
	}{
		{"XML with declaration", []byte(`<?xml version="1.0"?><Invoice/>`), processor.FormatXML},
		{"XML without declaration", []byte(`<rsm:CrossIndustryInvoice xmlns:rsm="urn:x"></rsm:CrossIndustryInvoice>`), processor.FormatXML},
		{"PDF", []byte("%PDF-1.4\n%some content"), processor.FormatPDF},
		{"PNG image", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, processor.FormatUnknown},
		{"Unknown format", []byte("some random text"), processor.FormatUnknown},
		{"Empty data", []byte{}, processor.FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, processor.DetectFormat(tt.data))
		})
	}
}

func TestResolveFormat(t *testing.T) {
	pdf := []byte("%PDF-1.4\n")
	assert.Equal(t, processor.FormatPDF, processor.ResolveFormat("a.PDF", pdf))
	assert.Equal(t, processor.FormatXML, processor.ResolveFormat("a.xml", pdf))
	assert.Equal(t, processor.FormatUnknown, processor.ResolveFormat("a.txt", pdf))
	assert.Equal(t, processor.FormatPDF, processor.ResolveFormat("upload", pdf))
}

func TestFormatString(t *testing.T) {
	tests := []struct {
		format   processor.Format
		expected string
	}{
		{processor.FormatXML, "xml"},
		{processor.FormatPDF, "pdf"},
		{processor.FormatUnknown, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.format.String())
		})
	}
}

func TestNormalizer(t *testing.T) {
	n := processor.NewNormalizer(clockwork.NewFakeClockAt(fixedNow))

	d := sampleDraft()
	d.Items = []model.LineItem{{Description: "x", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.RequireFromString("0.333"), VATRate: decimal.RequireFromString("5.5")}}
	md := n.FromDraft("X", d, finance.Aggregate(d.Items))
	assert.Equal(t, "1", md.TotalHT.String())
	assert.Equal(t, "0.05", md.TotalTax.String())
	assert.Equal(t, "1.05", md.TotalTTC.String())

	em := model.ExtractedMetadata{Metadata: model.Metadata{ID: "raw id", TotalHT: decimal.RequireFromString("10.005"), Source: model.SourceGenerated}}
	up := n.FromExtracted("rawid", em)
	assert.Equal(t, "rawid", up.ID)
	assert.Equal(t, "10.01", up.TotalHT.String())
	assert.Equal(t, "EUR", up.Currency)
	assert.Equal(t, model.SourceUpload, up.Source)
	assert.Equal(t, "2023-10-27T09:30:00Z", up.CreatedAt)
}

func TestDecode(t *testing.T) {
	src := foreignInvoice(t, sampleDraft())

	xml, format, err := processor.Decode("x.pdf", src.PDF)
	require.NoError(t, err)
	assert.Equal(t, processor.FormatPDF, format)
	assert.Equal(t, src.XML, xml)

	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, src.XML...)
	xml, format, err = processor.Decode("x.xml", withBOM)
	require.NoError(t, err)
	assert.Equal(t, processor.FormatXML, format)
	assert.True(t, strings.HasPrefix(xml, "<?xml"))
}

// Benchmark tests

func BenchmarkDetectFormat_XML(b *testing.B) {
	data := []byte(`<?xml version="1.0"?><rsm:CrossIndustryInvoice xmlns:rsm="urn:x"/>`)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		processor.DetectFormat(data)
	}
}

func BenchmarkDetectFormat_PDF(b *testing.B) {
	data := []byte("%PDF-1.4\n%some content here")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		processor.DetectFormat(data)
	}
}

func TestBuild_DoesNotStore(t *testing.T) {
	svc := processor.NewService(nil, processor.WithClock(clockwork.NewFakeClockAt(fixedNow)))

	b, err := svc.Build(context.Background(), sampleDraft())
	require.NoError(t, err)
	assert.Equal(t, "FV-2023-001", b.ID)
	assert.Equal(t, model.SourceGenerated, b.Metadata.Source)
	xml, _, found := facturx.ExtractXML(b.PDF)
	require.True(t, found)
	assert.Equal(t, b.XML, xml)
}

func TestInspect(t *testing.T) {
	src := foreignInvoice(t, sampleDraft())
	svc := processor.NewService(nil, processor.WithClock(clockwork.NewFakeClockAt(fixedNow)))

	md, err := svc.Inspect("invoice.pdf", src.PDF)
	require.NoError(t, err)
	assert.Equal(t, "FV-2023-001", md.ID)
	assert.Equal(t, "550.00", md.TotalHT.StringFixed(2))
	assert.Equal(t, model.SourceUpload, md.Source)

	_, err = svc.Inspect("invoice.xml", []byte("<Invoice/>"))
	assert.ErrorIs(t, err, model.ErrValidationFailure)
}
