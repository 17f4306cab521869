package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-workflow-api/internal/dto"
	"github.com/noah-isme/clinic-workflow-api/internal/models"
	"github.com/noah-isme/clinic-workflow-api/internal/service"
	appErrors "github.com/noah-isme/clinic-workflow-api/pkg/errors"
	"github.com/noah-isme/clinic-workflow-api/pkg/response"
)

type resultService interface {
	Upload(ctx context.Context, req dto.UploadResultRequest, upload service.ResultUpload, actor *models.Actor) (*models.TestResult, error)
	Verify(ctx context.Context, id int64, req dto.VerifyResultRequest, actor *models.Actor) (*models.TestResult, error)
	DownloadURL(ctx context.Context, id int64) (*dto.ResultDownloadResponse, error)
	Download(ctx context.Context, id int64, token string) (*service.ResultDownload, error)
}

// ResultHandler manages test result endpoints.
type ResultHandler struct {
	service resultService
}

// NewResultHandler constructs the handler.
func NewResultHandler(service resultService) *ResultHandler {
	return &ResultHandler{service: service}
}

// Upload godoc
// @Summary Upload a test result file
// @Tags Results
// @Accept multipart/form-data
// @Produce json
// @Param appointment_id formData int true "Appointment ID"
// @Param patient_id formData int true "Patient ID"
// @Param file formData file true "PDF, JPEG or PNG result"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /results [post]
func (h *ResultHandler) Upload(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UploadResultRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid result payload"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	reader, ok := src.(io.ReadSeeker)
	if !ok {
		buf, readErr := io.ReadAll(src)
		if readErr != nil {
			response.Error(c, appErrors.Wrap(readErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file"))
			return
		}
		reader = bytes.NewReader(buf)
	}
	result, err := h.service.Upload(c.Request.Context(), req, service.ResultUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Content:  reader,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "result uploaded", result)
}

// Get godoc
// @Summary Get result metadata with a signed download URL
// @Tags Results
// @Produce json
// @Param id path int true "Result ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /results/{id} [get]
func (h *ResultHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.DownloadURL(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a result file via signed token
// @Tags Results
// @Produce octet-stream
// @Param id path int true "Result ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /results/{id}/download [get]
func (h *ResultHandler) Download(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.service.Download(c.Request.Context(), id, token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, -1, file.MimeType, file.File, nil)
}

// Verify godoc
// @Summary Verify or reject a result
// @Description A verified result completes its appointment in the same transaction.
// @Tags Results
// @Accept json
// @Produce json
// @Param id path int true "Result ID"
// @Param payload body dto.VerifyResultRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /results/{id}/verify [post]
func (h *ResultHandler) Verify(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.VerifyResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid verification payload"))
		return
	}
	result, err := h.service.Verify(c.Request.Context(), id, req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "result "+string(result.Status), result)
}
