package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"arduino-fleet-backend/internal/metrics"
	"arduino-fleet-backend/internal/notion"
)

// ArduinoTest is a minimal reachability check for devices. The response
// is plain text because the device HTTP stacks choke on anything bigger.
func (h *Handler) ArduinoTest(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		body = map[string]any{"error": "Invalid JSON"}
	}
	logrus.WithField("body", body).Info("Received from Arduino")
	c.String(http.StatusOK, "OK")
}

type logFromClientRequest struct {
	Source    string         `json:"source"`
	TargetAPI string         `json:"target_api"`
	Meta      map[string]any `json:"meta"`
	Payload   map[string]any `json:"payload"`
}

// LogFromClient relays a device log line to an external target. Only the
// "notion" target is wired; unknown targets are logged and skipped so a
// misconfigured device never sees an error.
func (h *Handler) LogFromClient(c *gin.Context) {
	var req logFromClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid JSON"})
		return
	}

	logrus.WithFields(logrus.Fields{
		"source": req.Source,
		"target": req.TargetAPI,
	}).Info("Received log from client")

	if req.TargetAPI == "notion" && h.notion != nil {
		mode := notion.ModeCreatePage
		if m, ok := req.Meta["mode"].(string); ok && m != "" {
			mode = notion.Mode(m)
		}
		pageID, _ := req.Meta["page_id"].(string)

		status, err := h.notion.Relay(c.Request.Context(), req.Source, req.Payload, mode, pageID)
		if err != nil {
			metrics.LogRelayTotal.WithLabelValues("notion", "error").Inc()
			logrus.WithError(err).Warn("Notion relay failed")
		} else {
			metrics.LogRelayTotal.WithLabelValues("notion", "ok").Inc()
			logrus.WithField("status", status).Info("Notion relay response")
		}
	} else if req.TargetAPI != "notion" {
		metrics.LogRelayTotal.WithLabelValues(req.TargetAPI, "skipped").Inc()
		logrus.WithField("target", req.TargetAPI).Warn("Unknown target API, skipping relay")
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Log received",
		"echo": gin.H{
			"source":     req.Source,
			"target_api": req.TargetAPI,
			"meta":       req.Meta,
		},
	})
}

// GetToggles returns every known toggle state.
func (h *Handler) GetToggles(c *gin.Context) {
	c.JSON(http.StatusOK, h.toggles.All())
}

// GetToggle returns one toggle state; unknown names read as false.
func (h *Handler) GetToggle(c *gin.Context) {
	name := c.Param("name")
	state, known := h.toggles.Get(name)
	c.JSON(http.StatusOK, gin.H{"name": name, "state": state, "known": known})
}

type setToggleRequest struct {
	State *bool `json:"state"`
}

// SetToggle sets a toggle state, or flips it when no explicit state is
// supplied.
func (h *Handler) SetToggle(c *gin.Context) {
	name := c.Param("name")

	var req setToggleRequest
	_ = c.ShouldBindJSON(&req)

	var state bool
	if req.State != nil {
		h.toggles.Set(name, *req.State)
		state = *req.State
	} else {
		state = h.toggles.Flip(name)
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "state": state})
}
