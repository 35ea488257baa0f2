// Package handlers exposes the six session operations over HTTP.
package handlers

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/ggstvfer/psd-covert-sub000/apperrors"
	"github.com/ggstvfer/psd-covert-sub000/logging"
	"github.com/ggstvfer/psd-covert-sub000/models"
	"github.com/ggstvfer/psd-covert-sub000/services"
)

type HttpHandler struct {
	uploadService services.UploadService
	ready         *atomic.Bool
	logger        logging.Logger
}

func NewHttpHandler(uploadSvc services.UploadService, ready *atomic.Bool, l logging.Logger) *HttpHandler {
	return &HttpHandler{
		uploadService: uploadSvc,
		ready:         ready,
		logger:        l,
	}
}

func (h *HttpHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Healthz)

	v1 := router.Group("/v1")
	v1.POST("/sessions", h.Init)
	v1.POST("/sessions/:id/chunks", h.Append)
	v1.GET("/sessions/:id", h.Status)
	v1.GET("/sessions/:id/partial", h.Partial)
	v1.POST("/sessions/:id/complete", h.Complete)
	v1.DELETE("/sessions/:id", h.Abort)
}

type initRequest struct {
	FileName     string `json:"file_name" binding:"required"`
	Encoding     string `json:"encoding"`
	ExpectedSize uint64 `json:"expected_size"`
}

type appendRequest struct {
	Chunk string  `json:"chunk" binding:"required"`
	Index *uint32 `json:"index"` // optional retry/dedup handle
}

func (h *HttpHandler) Healthz(c *gin.Context) {
	if h.ready != nil && !h.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HttpHandler) Init(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, apperrors.InvalidRequest(err))
		return
	}

	out, err := h.uploadService.Init(c.Request.Context(), req.FileName, models.Encoding(req.Encoding), req.ExpectedSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *HttpHandler) Append(c *gin.Context) {
	var req appendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, apperrors.InvalidRequest(err))
		return
	}

	out, err := h.uploadService.Append(c.Request.Context(), c.Param("id"), req.Chunk, req.Index)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *HttpHandler) Status(c *gin.Context) {
	out, err := h.uploadService.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *HttpHandler) Partial(c *gin.Context) {
	out, err := h.uploadService.Partial(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *HttpHandler) Complete(c *gin.Context) {
	out, err := h.uploadService.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *HttpHandler) Abort(c *gin.Context) {
	out, err := h.uploadService.Abort(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// writeError maps the error taxonomy onto HTTP statuses. Anything
// without a code is reported as INTERNAL without leaking its message.
func (h *HttpHandler) writeError(c *gin.Context, err error) {
	var coded *apperrors.Error
	if !errors.As(err, &coded) {
		h.logger.Error("operation failed with uncoded error", "path", c.FullPath(), "error", err)
		coded = apperrors.Internal("internal error")
	}

	body := gin.H{
		"code":    string(coded.Code),
		"message": coded.Message,
	}
	if coded.ChunkIndex >= 0 {
		body["index"] = coded.ChunkIndex
	}

	c.JSON(statusForCode(coded.Code), gin.H{"error": body})
}

func statusForCode(code apperrors.Code) int {
	switch code {
	case apperrors.CodeNoSession:
		return http.StatusNotFound
	case apperrors.CodeAborted:
		return http.StatusConflict
	case apperrors.CodeInvalidSignature:
		return http.StatusUnprocessableEntity
	case apperrors.CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperrors.CodeDecompressionFailure:
		return http.StatusBadRequest
	case apperrors.CodeMissingChunk:
		return http.StatusConflict
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
