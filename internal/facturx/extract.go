package facturx

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// KnownXMLNames are the attachment names used by Factur-X, ZUGFeRD and XRechnung producers, in preference order
var KnownXMLNames = []string{
	"factur-x.xml",
	"zugferd-invoice.xml",
	"ZUGFeRD-invoice.xml",
	"xrechnung.xml",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Attachment is an embedded file read from a PDF
type Attachment struct {
	Name string
	Data []byte
}

// Attachments returns every embedded file of pdf
func Attachments(pdf []byte) (out []Attachment, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("pdf backend: %v", r)
		}
	}()

	raw, err := api.ExtractAttachmentsRaw(bytes.NewReader(pdf), "", nil, newConfiguration(pdfmodel.EXTRACTATTACHMENTS))
	if err != nil {
		return nil, err
	}

	out = make([]Attachment, 0, len(raw))
	for _, a := range raw {
		if a.Reader == nil {
			continue
		}
		data, err := io.ReadAll(a.Reader)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", a.FileName, err)
		}
		name := a.FileName
		if name == "" {
			name = a.ID
		}
		out = append(out, Attachment{Name: name, Data: data})
	}
	return out, nil
}

// ExtractXML returns the embedded invoice XML. found is false when the input is
// not a readable PDF, has no suitable attachment, or the attachment is not UTF-8 text.
func ExtractXML(pdf []byte) (xml string, name string, found bool) {
	attachments, err := Attachments(pdf)
	if err != nil || len(attachments) == 0 {
		return "", "", false
	}

	a, ok := pickInvoiceAttachment(attachments)
	if !ok {
		return "", "", false
	}

	data := bytes.TrimPrefix(a.Data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 || !utf8.Valid(data) {
		return "", "", false
	}
	return string(data), a.Name, true
}

func pickInvoiceAttachment(attachments []Attachment) (Attachment, bool) {
	for _, want := range KnownXMLNames {
		for _, a := range attachments {
			if path.Base(a.Name) == want {
				return a, true
			}
		}
	}
	for _, a := range attachments {
		if strings.EqualFold(path.Ext(a.Name), ".xml") {
			return a, true
		}
	}
	if len(attachments) == 1 {
		return attachments[0], true
	}
	return Attachment{}, false
}

// AssociatedFile describes one entry of the catalog AF array
type AssociatedFile struct {
	Relationship string
	Subtype      string
}

// Info summarizes the Factur-X markers of a PDF
type Info struct {
	PageCount       int
	Attachments     []string
	AssociatedFiles []AssociatedFile
	HasMetadata     bool
}

// Inspect reads the container-level markers of pdf
func Inspect(pdf []byte) (info *Info, err error) {
	defer func() {
		if r := recover(); r != nil {
			info, err = nil, fmt.Errorf("pdf backend: %v", r)
		}
	}()

	ctx, err := api.ReadContext(bytes.NewReader(pdf), newConfiguration(pdfmodel.LISTATTACHMENTS))
	if err != nil {
		return nil, fmt.Errorf("read PDF: %w", err)
	}
	catalog, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	info = &Info{PageCount: ctx.PageCount}
	_, info.HasMetadata = catalog["Metadata"]

	if af, ok := catalog["AF"]; ok {
		arr, err := ctx.DereferenceArray(af)
		if err != nil {
			return nil, fmt.Errorf("read AF array: %w", err)
		}
		for _, o := range arr {
			d, err := ctx.DereferenceDict(o)
			if err != nil || d == nil {
				continue
			}
			f := AssociatedFile{}
			if rel := d.NameEntry("AFRelationship"); rel != nil {
				f.Relationship = *rel
			}
			if ef := d.DictEntry("EF"); ef != nil {
				if sd, ok := lookupStream(ctx, ef["F"]); ok {
					if st := sd.Dict.NameEntry("Subtype"); st != nil {
						f.Subtype = strings.ReplaceAll(*st, "#2F", "/")
					}
				}
			}
			info.AssociatedFiles = append(info.AssociatedFiles, f)
		}
	}

	attachments, err := Attachments(pdf)
	if err == nil {
		for _, a := range attachments {
			info.Attachments = append(info.Attachments, a.Name)
		}
	}
	return info, nil
}
