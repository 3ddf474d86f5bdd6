package facturx

import (
	"time"

	"github.com/beevik/etree"
)

// Factur-X document markers written into the XMP packet
const (
	AttachmentName   = "factur-x.xml"
	AttachmentDesc   = "Factur-X invoice"
	DocumentType     = "INVOICE"
	Version          = "1.0"
	ConformanceLevel = "BASIC"
	PDFAPart         = "3"
	PDFAConformance  = "B"
	Producer         = "facturx"

	fxNamespace = "urn:factur-x:pdfa:CrossIndustryDocument:invoice:1p0#"
	xpacketID   = "W5M0MpCehiHzreSzNTczkc9d"
)

// XMP namespaces
const (
	nsX             = "adobe:ns:meta/"
	nsRDF           = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsPDFAID        = "http://www.aiim.org/pdfa/ns/id/"
	nsDC            = "http://purl.org/dc/elements/1.1/"
	nsPDF           = "http://ns.adobe.com/pdf/1.3/"
	nsXMP           = "http://ns.adobe.com/xap/1.0/"
	nsPDFAExtension = "http://www.aiim.org/pdfa/ns/extension/"
	nsPDFASchema    = "http://www.aiim.org/pdfa/ns/schema#"
	nsPDFAProperty  = "http://www.aiim.org/pdfa/ns/property#"
)

// fxProperties are the extension schema entries, name then description
var fxProperties = [][2]string{
	{"DocumentFileName", "name of the embedded XML invoice file"},
	{"DocumentType", "INVOICE"},
	{"Version", "The actual version of the Factur-X XML schema"},
	{"ConformanceLevel", "The conformance level of the embedded Factur-X data"},
}

// buildXMP renders the metadata packet declaring PDF/A-3B and the Factur-X extension schema
func buildXMP(title string, at time.Time) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xpacket", `begin="`+"\ufeff"+`" id="`+xpacketID+`"`)

	meta := doc.CreateElement("x:xmpmeta")
	meta.CreateAttr("xmlns:x", nsX)
	rdf := meta.CreateElement("rdf:RDF")
	rdf.CreateAttr("xmlns:rdf", nsRDF)

	id := description(rdf, "pdfaid", nsPDFAID)
	textChild(id, "pdfaid:part", PDFAPart)
	textChild(id, "pdfaid:conformance", PDFAConformance)

	dc := description(rdf, "dc", nsDC)
	textChild(dc, "dc:format", "application/pdf")
	li := dc.CreateElement("dc:title").CreateElement("rdf:Alt").CreateElement("rdf:li")
	li.CreateAttr("xml:lang", "x-default")
	li.SetText(title)

	textChild(description(rdf, "pdf", nsPDF), "pdf:Producer", Producer)

	date := at.UTC().Format(time.RFC3339)
	xmp := description(rdf, "xmp", nsXMP)
	textChild(xmp, "xmp:CreatorTool", Producer)
	textChild(xmp, "xmp:CreateDate", date)
	textChild(xmp, "xmp:ModifyDate", date)
	textChild(xmp, "xmp:MetadataDate", date)

	ext := description(rdf, "pdfaExtension", nsPDFAExtension)
	ext.CreateAttr("xmlns:pdfaSchema", nsPDFASchema)
	ext.CreateAttr("xmlns:pdfaProperty", nsPDFAProperty)
	schema := ext.CreateElement("pdfaExtension:schemas").CreateElement("rdf:Bag").CreateElement("rdf:li")
	schema.CreateAttr("rdf:parseType", "Resource")
	textChild(schema, "pdfaSchema:schema", "Factur-X PDFA Extension Schema")
	textChild(schema, "pdfaSchema:namespaceURI", fxNamespace)
	textChild(schema, "pdfaSchema:prefix", "fx")
	seq := schema.CreateElement("pdfaSchema:property").CreateElement("rdf:Seq")
	for _, p := range fxProperties {
		prop := seq.CreateElement("rdf:li")
		prop.CreateAttr("rdf:parseType", "Resource")
		textChild(prop, "pdfaProperty:name", p[0])
		textChild(prop, "pdfaProperty:valueType", "Text")
		textChild(prop, "pdfaProperty:category", "external")
		textChild(prop, "pdfaProperty:description", p[1])
	}

	fx := description(rdf, "fx", fxNamespace)
	textChild(fx, "fx:DocumentType", DocumentType)
	textChild(fx, "fx:DocumentFileName", AttachmentName)
	textChild(fx, "fx:Version", Version)
	textChild(fx, "fx:ConformanceLevel", ConformanceLevel)

	doc.CreateProcInst("xpacket", `end="w"`)
	doc.Indent(1)
	return doc.WriteToBytes()
}

// description adds an rdf:Description binding prefix to ns
func description(rdf *etree.Element, prefix, ns string) *etree.Element {
	d := rdf.CreateElement("rdf:Description")
	d.CreateAttr("rdf:about", "")
	d.CreateAttr("xmlns:"+prefix, ns)
	return d
}

func textChild(parent *etree.Element, tag, text string) *etree.Element {
	e := parent.CreateElement(tag)
	e.SetText(text)
	return e
}
