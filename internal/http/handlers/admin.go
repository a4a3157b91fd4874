package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/http/response"
	"github.com/OperativeX/processmind-sub001/internal/platform/ctxutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/services"
)

type AdminHandler struct {
	log   *logger.Logger
	usage services.StorageTrackingService
}

func NewAdminHandler(log *logger.Logger, usage services.StorageTrackingService) *AdminHandler {
	return &AdminHandler{
		log:   log.With("handler", "AdminHandler"),
		usage: usage,
	}
}

// ReconcileUsage re-derives the caller tenant's storage counters from the
// bucket listing. Safe to call repeatedly.
func (h *AdminHandler) ReconcileUsage(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.TenantID == uuid.Nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthenticated", fmt.Errorf("missing identity"))
		return
	}
	res, err := h.usage.Reconcile(dbctx.Context{Ctx: c.Request.Context()}, rd.TenantID, rd.UserID)
	if err != nil {
		h.log.Error("Reconcile failed", "tenant_id", rd.TenantID, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "reconcile_failed", err)
		return
	}
	response.RespondOK(c, res)
}

// GetUsage reports the caller's stored bytes and file count.
func (h *AdminHandler) GetUsage(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.TenantID == uuid.Nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthenticated", fmt.Errorf("missing identity"))
		return
	}
	totals, err := h.usage.Totals(dbctx.Context{Ctx: c.Request.Context()}, rd.TenantID, rd.UserID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	response.RespondOK(c, totals)
}
