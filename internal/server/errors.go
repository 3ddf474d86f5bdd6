package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/facturx/internal/model"
)

var statusByKind = map[model.Kind]int{
	model.KindInvalidIdentifier:   http.StatusBadRequest,
	model.KindEmptyUpload:         http.StatusBadRequest,
	model.KindInvalidDraft:        http.StatusBadRequest,
	model.KindNotFound:            http.StatusNotFound,
	model.KindDuplicateInvoice:    http.StatusConflict,
	model.KindUnsupportedFileType: http.StatusUnsupportedMediaType,
	model.KindExtractionFailure:   http.StatusUnprocessableEntity,
	model.KindValidationFailure:   http.StatusUnprocessableEntity,
	model.KindIncompleteMetadata:  http.StatusUnprocessableEntity,
	model.KindRemoteSendFailure:   http.StatusBadGateway,
}

// StatusFor maps a failure to its HTTP status
func StatusFor(err error) int {
	if status, ok := statusByKind[model.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// abortWithError writes err as an ErrorResponse and records it on the context
// for the request logger
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	resp := ErrorResponse{Error: "INTERNAL_ERROR", Message: "internal server error"}
	var me *model.Error
	if errors.As(err, &me) {
		resp.Error = string(me.Kind)
		resp.Message = me.Message
		resp.Reason = me.Reason
		resp.Fields = me.Fields
		if resp.Message == "" {
			resp.Message = me.Error()
		}
	}
	c.AbortWithStatusJSON(StatusFor(err), resp)
}
