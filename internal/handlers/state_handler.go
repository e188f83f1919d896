package handlers

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/pklhub/pklhub-api/internal/models"
	"github.com/pklhub/pklhub-api/internal/session"
)

// StateHandler streams session state transitions to the companion UI over
// server-sent events. Each subscriber gets the current state immediately,
// then one event per transition.
type StateHandler struct {
	manager *session.Manager
}

// NewStateHandler creates a new StateHandler
func NewStateHandler(manager *session.Manager) *StateHandler {
	return &StateHandler{
		manager: manager,
	}
}

// Stream handles GET /api/v1/session/stream
func (h *StateHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Connection", "keep-alive")

	// Buffered so a stalled client never blocks the session manager's
	// notification loop. When the buffer fills, intermediate states are
	// dropped; the client always converges on the latest one.
	updates := make(chan session.State, 16)
	unsubscribe := h.manager.Subscribe(func(s session.State) {
		select {
		case updates <- s:
		default:
		}
	})
	defer unsubscribe()

	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case state := <-updates:
			c.SSEvent("state", models.SessionStateResponse{
				User:    state.User,
				Loading: state.Loading,
				Error:   state.Error,
			})
			return true
		}
	})
}
