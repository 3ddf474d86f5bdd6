package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/facturx/internal/model"
)

const (
	createTimeout = 2 * time.Minute
	readTimeout   = 30 * time.Second
)

func (s *Server) handleCreate(c *gin.Context) {
	var draft model.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		abortWithError(c, model.NewInvalidDraft("", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), createTimeout)
	defer cancel()

	bundle, err := s.service.Create(ctx, &draft)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/pdf", bundle.PDF)
}

func (s *Server) handleUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, model.NewEmptyUpload())
		return
	}
	f, err := fh.Open()
	if err != nil {
		abortWithError(c, model.NewEmptyUpload())
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		abortWithError(c, fmt.Errorf("read upload: %w", err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), createTimeout)
	defer cancel()

	md, err := s.service.Upload(ctx, fh.Filename, data)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, md)
}

func (s *Server) handleList(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	list, err := s.service.List(ctx)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if list == nil {
		list = []model.Metadata{}
	}
	c.JSON(http.StatusOK, list)
}

// wantsXML reports whether the client negotiated the XML representation
func wantsXML(c *gin.Context) bool {
	if strings.EqualFold(c.Query("format"), "xml") {
		return true
	}
	return strings.Contains(strings.ToLower(c.GetHeader("Accept")), "xml")
}

func (s *Server) handleGet(c *gin.Context) {
	id, err := model.SanitizeID(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	rep := model.RepresentationPDF
	if wantsXML(c) {
		rep = model.RepresentationXML
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	data, err := s.service.Get(ctx, id, rep)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if rep == model.RepresentationXML {
		c.Data(http.StatusOK, "application/xml", data)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", data)
}

func (s *Server) handleDelete(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	if err := s.service.Delete(ctx, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSend(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), createTimeout)
	defer cancel()

	if err := s.service.Send(ctx, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, SendResponse{Status: "sent"})
}
