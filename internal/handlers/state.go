package handlers

import (
	"errors"
	"net/http"

	"plug_sync/internal/models"
	"plug_sync/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK = "ok"

	errInvalidState = "State must be ON or OFF"
	errSaveState    = "failed to save state"
	errGetStatus    = "failed to load status"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// SetStateRequest is the body of POST /state.
type SetStateRequest struct {
	// Desired state. Allowed: ON, OFF
	State string `json:"state" example:"ON"`
}

// StateResponse is the body of GET /state.
type StateResponse struct {
	State models.PlugState `json:"state" example:"OFF"`
}

// SetStateResponse is the body of a successful POST /state.
type SetStateResponse struct {
	Success bool             `json:"success" example:"true"`
	State   models.PlugState `json:"state" example:"ON"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Get desired state
// @Tags         state
// @Produce      json
// @Success      200  {object}  StateResponse
// @Failure      500  {object}  map[string]string
// @Router       /state [get]
func (h *Handler) getState(c *gin.Context) {
	st, err := h.services.Desired.Get(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load state", "state_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, StateResponse{State: st})
}

// @Summary      Set desired state
// @Description  Persists the state, cancels pending per-device syncs and sends one group command.
// @Tags         state
// @Accept       json
// @Produce      json
// @Param        body  body      SetStateRequest  true  "Desired state"
// @Success      200   {object}  SetStateResponse
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /state [post]
func (h *Handler) setState(c *gin.Context) {
	var req SetStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidState})
		return
	}
	st, err := models.ParsePlugState(req.State)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidState})
		return
	}

	if err := h.services.Desired.Set(c.Request.Context(), st); err != nil {
		if errors.Is(err, service.ErrInvalidState) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidState})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errSaveState, "state_set_failed", err, "state", st)
		return
	}
	c.JSON(http.StatusOK, SetStateResponse{Success: true, State: st})
}

// @Summary      Reconciler status
// @Tags         system
// @Produce      json
// @Success      200  {object}  models.SyncStatus
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/status [get]
func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.services.Monitoring.Status(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetStatus, "status_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}
