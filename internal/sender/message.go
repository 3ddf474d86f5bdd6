package sender

import (
	"encoding/json"
	"fmt"

	"github.com/rezonia/facturx/internal/model"
)

// Envelope constants expected by the remote message API
const (
	ContentTypeJSON     = "application/json"
	DocumentTypeInvoice = "FACTURE_CLIENT"
	Origin              = "FACTUR-X-GO"
	OriginGenerated     = "GENERATED"
	OriginUpload        = "UPLOAD"
	PDFMimeType         = "application/pdf"
)

// DocumentMessage points the remote side at the downloadable PDF
type DocumentMessage struct {
	Name      string `json:"nom"`
	MimeType  string `json:"typeMime"`
	URL       string `json:"url,omitempty"`
	URLV2     string `json:"urlV2"`
	Effective string `json:"dateEffet,omitempty"`
	Origin    string `json:"origine,omitempty"`
}

// FluxExportDocument is the business payload of the message
type FluxExportDocument struct {
	FolderNumber string          `json:"numeroDossier"`
	DocumentID   string          `json:"idDocument"`
	DocumentType string          `json:"typeDocument"`
	Origin       string          `json:"origine"`
	AnalysisOn   bool            `json:"kanalyseActif"`
	Document     DocumentMessage `json:"document"`
}

// RabbitInfoMessage carries the payload as a JSON string
type RabbitInfoMessage struct {
	ContentType string         `json:"contentType"`
	Headers     map[string]any `json:"headers"`
	Payload     string         `json:"payload"`
}

// RabbitInjectionMessage is the request body of POST /api/messages
type RabbitInjectionMessage struct {
	RoutingKey string            `json:"routingKey"`
	Message    RabbitInfoMessage `json:"message"`
}

// NewFluxExportDocument describes a stored invoice for the remote side
func NewFluxExportDocument(md model.Metadata, folderNumber, downloadURL string) FluxExportDocument {
	origin := OriginGenerated
	if md.Source == model.SourceUpload {
		origin = OriginUpload
	}
	return FluxExportDocument{
		FolderNumber: folderNumber,
		DocumentID:   md.ID,
		DocumentType: DocumentTypeInvoice,
		Origin:       Origin,
		AnalysisOn:   true,
		Document: DocumentMessage{
			Name:      md.ID + ".pdf",
			MimeType:  PDFMimeType,
			URL:       downloadURL,
			URLV2:     downloadURL,
			Effective: md.Date,
			Origin:    origin,
		},
	}
}

// NewInjectionMessage wraps doc in the routing envelope
func NewInjectionMessage(routingKey string, doc FluxExportDocument) (*RabbitInjectionMessage, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return &RabbitInjectionMessage{
		RoutingKey: routingKey,
		Message: RabbitInfoMessage{
			ContentType: ContentTypeJSON,
			Headers:     map[string]any{},
			Payload:     string(payload),
		},
	}, nil
}
