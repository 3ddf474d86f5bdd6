package processor

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format represents the kind of uploaded document
type Format int

const (
	FormatUnknown Format = iota
	FormatPDF
	FormatXML
)

// String returns the string representation of the format
func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatXML:
		return "xml"
	default:
		return "unknown"
	}
}

// DetectFormat sniffs the content type of data
func DetectFormat(data []byte) Format {
	if len(data) == 0 {
		return FormatUnknown
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		switch {
		case m.Is("application/pdf"):
			return FormatPDF
		case m.Is("text/xml"), m.Is("application/xml"):
			return FormatXML
		}
	}
	return FormatUnknown
}

// DeclaredFormat maps the extension of filename to a format
func DeclaredFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF
	case ".xml":
		return FormatXML
	default:
		return FormatUnknown
	}
}

// ResolveFormat trusts the declared extension and sniffs the content only
// when filename carries no extension at all
func ResolveFormat(filename string, data []byte) Format {
	if filepath.Ext(filename) == "" {
		return DetectFormat(data)
	}
	return DeclaredFormat(filename)
}
