package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/http/response"
	"github.com/OperativeX/processmind-sub001/internal/platform/ctxutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/realtime"
)

// RealtimeHandler serves the SSE stream carrying job and record progress
// events. Every connection is subscribed to the caller's user channel;
// that is the channel the notifiers publish to.
type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{
		log: log.With("handler", "RealtimeHandler"),
		hub: hub,
	}
}

func (h *RealtimeHandler) Stream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthenticated", fmt.Errorf("missing identity"))
		return
	}

	client := h.hub.NewSSEClient(rd.UserID)
	h.hub.AddChannel(client, rd.UserID.String())
	h.log.Info("SSE stream opened", "user_id", rd.UserID, "client_id", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Info("SSE stream closed", "user_id", rd.UserID, "client_id", client.ID)
}
