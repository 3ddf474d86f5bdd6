// Package facturx embeds CII XML into PDF documents and reads it back.
package facturx

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/rezonia/facturx/internal/cii"
	"github.com/rezonia/facturx/internal/model"
)

// Attachment stream markers
const (
	RelationshipData = "Data"
	StreamSubtype    = "text/xml"
	MIMEType         = "application/xml"
)

var configOnce sync.Once

// newConfiguration returns a relaxed pdfcpu configuration that never touches the user config dir
func newConfiguration(cmd pdfmodel.CommandMode) *pdfmodel.Configuration {
	configOnce.Do(api.DisableConfigDir)
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	conf.Cmd = cmd
	return conf
}

// Composer turns a rendered PDF into a Factur-X document
type Composer struct {
	clock clockwork.Clock
}

// Option configures a Composer
type Option func(*Composer)

// WithClock sets the clock used for attachment and XMP timestamps
func WithClock(c clockwork.Clock) Option {
	return func(comp *Composer) {
		comp.clock = c
	}
}

// NewComposer creates a composer
func NewComposer(opts ...Option) *Composer {
	c := &Composer{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose embeds xml into pdf as factur-x.xml with the Data relationship,
// registers it in the catalog AF array and writes the PDF/A-3 XMP packet.
// Every failure is an EmbeddingFailure; the input is never returned as-is.
func (c *Composer) Compose(pdf []byte, xml, title string) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, model.NewEmbeddingFailure(fmt.Errorf("pdf backend: %v", r))
		}
	}()

	if len(pdf) == 0 {
		return nil, model.NewEmbeddingFailure(errors.New("empty PDF input"))
	}
	if strings.TrimSpace(xml) == "" || !utf8.ValidString(xml) {
		return nil, model.NewEmbeddingFailure(errors.New("XML payload is empty or not UTF-8"))
	}
	if _, err := cii.Parse(xml); err != nil {
		return nil, model.NewEmbeddingFailure(fmt.Errorf("malformed XML: %w", err))
	}

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdf), newConfiguration(pdfmodel.ADDATTACHMENTS))
	if err != nil {
		return nil, model.NewEmbeddingFailure(fmt.Errorf("read PDF: %w", err))
	}

	now := c.clock.Now()
	firstNew := *ctx.XRefTable.Size
	attachment := pdfmodel.Attachment{
		Reader:   strings.NewReader(xml),
		ID:       AttachmentName,
		FileName: AttachmentName,
		Desc:     AttachmentDesc,
		ModTime:  &now,
	}
	if err := ctx.AddAttachment(attachment, false); err != nil {
		return nil, model.NewEmbeddingFailure(fmt.Errorf("add attachment: %w", err))
	}

	fileSpec, err := markAssociatedFile(ctx, firstNew)
	if err != nil {
		return nil, model.NewEmbeddingFailure(err)
	}
	if err := writeCatalogEntries(ctx, *fileSpec, title, now); err != nil {
		return nil, model.NewEmbeddingFailure(err)
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, model.NewEmbeddingFailure(fmt.Errorf("write PDF: %w", err))
	}
	return buf.Bytes(), nil
}

// markAssociatedFile finds the file specification created for the attachment,
// flags it as the structured data of the document and types its stream.
func markAssociatedFile(ctx *pdfmodel.Context, firstNew int) (*types.IndirectRef, error) {
	table := ctx.XRefTable
	for objNr := firstNew; objNr < *table.Size; objNr++ {
		entry, ok := table.Table[objNr]
		if !ok || entry.Free || entry.Object == nil {
			continue
		}
		d, ok := entry.Object.(types.Dict)
		if !ok || d.Type() == nil || *d.Type() != "Filespec" {
			continue
		}

		d["AFRelationship"] = types.Name(RelationshipData)
		if ef := d.DictEntry("EF"); ef != nil {
			for _, key := range []string{"F", "UF"} {
				if sd, ok := lookupStream(ctx, ef[key]); ok {
					sd.Dict["Subtype"] = types.Name(StreamSubtype)
				}
			}
		}
		return types.NewIndirectRef(objNr, 0), nil
	}
	return nil, errors.New("attachment file specification not found")
}

// writeCatalogEntries registers the associated file and the XMP metadata stream on the catalog
func writeCatalogEntries(ctx *pdfmodel.Context, fileSpec types.IndirectRef, title string, now time.Time) error {
	catalog, err := ctx.Catalog()
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	catalog["AF"] = types.Array{fileSpec}

	xmp, err := buildXMP(title, now)
	if err != nil {
		return fmt.Errorf("build XMP: %w", err)
	}

	// PDF/A forbids filters on the metadata stream
	sd := types.NewStreamDict(types.Dict{
		"Type":    types.Name("Metadata"),
		"Subtype": types.Name("XML"),
	}, 0, nil, nil, nil)
	sd.Content = xmp
	if err := sd.Encode(); err != nil {
		return fmt.Errorf("encode XMP: %w", err)
	}
	ir, err := ctx.IndRefForNewObject(sd)
	if err != nil {
		return fmt.Errorf("store XMP: %w", err)
	}
	catalog["Metadata"] = *ir
	return nil
}

func lookupStream(ctx *pdfmodel.Context, o types.Object) (types.StreamDict, bool) {
	switch v := o.(type) {
	case types.StreamDict:
		return v, true
	case types.IndirectRef:
		entry, ok := ctx.XRefTable.Table[v.ObjectNumber.Value()]
		if !ok || entry.Object == nil {
			return types.StreamDict{}, false
		}
		sd, ok := entry.Object.(types.StreamDict)
		return sd, ok
	}
	return types.StreamDict{}, false
}
