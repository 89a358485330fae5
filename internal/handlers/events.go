package handlers

import (
	"net/http"

	"nhooyr.io/websocket"

	"github.com/couplemovie/backend/internal/logging"
)

// EventsHandler upgrades to a websocket and streams the caller's events.
type EventsHandler struct {
	Events EventStreamer
	// OriginPatterns lists extra hosts allowed to open the stream from a browser.
	OriginPatterns []string
}

// Stream handles GET /api/v1/events.
func (h EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Events == nil {
		logger.Error("event stream unavailable")
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "event stream unavailable", Code: "unavailable"})
		return
	}

	accountID := logging.AccountIDFromContext(ctx)
	if accountID == "" {
		respondUnauthorized(ctx, w, "authentication required")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	if err := h.Events.Stream(ctx, conn, accountID); err != nil {
		logger.Info("event stream closed", "error", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
