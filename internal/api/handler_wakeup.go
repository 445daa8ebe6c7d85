package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"arduino-fleet-backend/internal/parse"
)

// isoMillis is ISO-8601 with millisecond precision, the shape devices
// parse out of the wakeup response.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Wakeup is the device heartbeat. It returns the current time and the
// machine's stored wakeup payload; no state transition is recorded.
func (h *Handler) Wakeup(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.Param("machine_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}

	machine, err := h.store.MachineByIdentifier(c.Request.Context(), parse.Identifier{Kind: parse.ByID, ID: machineID})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	payload := json.RawMessage(machine.WakeupPayload)
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	c.JSON(http.StatusOK, gin.H{
		"date_time": time.Now().UTC().Format(isoMillis),
		"payload":   payload,
	})
}

// UpdateWakeupPayload replaces a machine's wakeup payload wholesale. The
// body must carry a "payload" key; its value is stored opaquely.
func (h *Handler) UpdateWakeupPayload(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.Param("machine_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}

	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw, ok := body["payload"]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'payload' in request body"})
		return
	}

	err = h.store.SetWakeupPayload(c.Request.Context(), machineID, datatypes.JSON(raw))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "wakeup_payload updated successfully",
		"payload": raw,
	})
}
