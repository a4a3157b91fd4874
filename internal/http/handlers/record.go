package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/http/response"
	"github.com/OperativeX/processmind-sub001/internal/platform/ctxutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/platform/perr"
	"github.com/OperativeX/processmind-sub001/internal/services"
)

type RecordHandler struct {
	log      *logger.Logger
	pipeline services.PipelineService
	records  services.RecordService
}

func NewRecordHandler(log *logger.Logger, pipeline services.PipelineService, records services.RecordService) *RecordHandler {
	return &RecordHandler{
		log:      log.With("handler", "RecordHandler"),
		pipeline: pipeline,
		records:  records,
	}
}

// Upload accepts a multipart media file, stores it locally and kicks off
// the processing pipeline.
func (h *RecordHandler) Upload(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.TenantID == uuid.Nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthenticated", fmt.Errorf("missing identity"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("missing file field: %w", err))
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	defer f.Close()

	rec, err := h.pipeline.AcceptUpload(dbctx.Context{Ctx: c.Request.Context()}, services.AcceptUploadInput{
		TenantID:    rd.TenantID,
		OwnerUserID: rd.UserID,
		Filename:    fileHeader.Filename,
		Content:     f,
	})
	if err != nil {
		h.log.Error("Upload failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "upload_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{
		"record_id": rec.ID,
		"status":    rec.Status,
	})
}

func (h *RecordHandler) GetStatus(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	recID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid record id"))
		return
	}
	st, err := h.records.GetStatus(dbctx.Context{Ctx: c.Request.Context()}, rd.TenantID, recID)
	if err != nil {
		if errors.Is(err, perr.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("record not found"))
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	response.RespondOK(c, st)
}

func (h *RecordHandler) Delete(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	recID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid record id"))
		return
	}
	res, err := h.records.Delete(dbctx.Context{Ctx: c.Request.Context()}, rd.TenantID, recID)
	if err != nil {
		if errors.Is(err, perr.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("record not found"))
			return
		}
		h.log.Error("Delete failed", "record_id", recID, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "delete_failed", err)
		return
	}
	response.RespondOK(c, res)
}
