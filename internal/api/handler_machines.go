package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"arduino-fleet-backend/internal/model"
	"arduino-fleet-backend/internal/parse"
	"arduino-fleet-backend/internal/store"
)

type machineResponse struct {
	ID            int64           `json:"id"`
	IP            *string         `json:"ip"`
	Alias         string          `json:"alias"`
	WakeupPayload json.RawMessage `json:"wakeupPayload"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Tasks         []taskResponse  `json:"tasks"`
}

func toMachineResponse(m *model.Machine) machineResponse {
	payload := json.RawMessage(m.WakeupPayload)
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	tasks := make([]taskResponse, 0, len(m.Tasks))
	for _, t := range m.Tasks {
		tasks = append(tasks, taskResponse{TaskName: t.TaskName, Notes: t.Notes, Status: string(t.Status)})
	}
	return machineResponse{
		ID:            m.ID,
		IP:            m.IP,
		Alias:         m.Alias,
		WakeupPayload: payload,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		Tasks:         tasks,
	}
}

type addMachineRequest struct {
	IP    string `json:"ip"`
	Alias string `json:"alias"`
}

// AddMachine registers a machine. Without an IP every call creates a new
// row; with an IP the existing machine is reused and its alias replaced.
func (h *Handler) AddMachine(c *gin.Context) {
	var req addMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Alias == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	ctx := c.Request.Context()

	if req.IP == "" {
		machine, err := h.store.CreateMachine(ctx, req.Alias)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ip": machine.IP, "alias": machine.Alias})
		return
	}

	machine, created, err := h.store.GetOrCreateMachineByIP(ctx, req.IP, req.Alias)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !created {
		machine.Alias = req.Alias
		if err := h.store.SaveMachine(ctx, machine); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ip": machine.IP, "alias": machine.Alias})
}

type removeMachineRequest struct {
	IP string `json:"ip"`
	ID *int64 `json:"id"`
}

// RemoveMachine deletes a machine that has no running or paused tasks,
// purging its idle tasks first.
func (h *Handler) RemoveMachine(c *gin.Context) {
	var req removeMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident, err := parse.FromFields(req.IP, req.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing machine identifier"})
		return
	}

	idleDeleted, err := h.store.RemoveMachine(c.Request.Context(), ident)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found"})
	case errors.Is(err, store.ErrActiveTasks):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot remove machine with active tasks"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Machine removed successfully, %d idle task(s) deleted", idleDeleted),
		})
	}
}

// GetMachine returns a single machine with its active tasks. The
// identifier resolves by numeric ID first, then by IP.
func (h *Handler) GetMachine(c *gin.Context) {
	ident, err := parse.Identify(c.Param("identifier"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing machine identifier"})
		return
	}

	machine, err := h.store.MachineWithActiveTasks(c.Request.Context(), ident)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toMachineResponse(machine))
}

// GetMachines lists every machine with its active tasks. Idle tasks are
// never surfaced here.
func (h *Handler) GetMachines(c *gin.Context) {
	machines, err := h.store.ListMachines(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]machineResponse, 0, len(machines))
	for i := range machines {
		out = append(out, toMachineResponse(&machines[i]))
	}
	c.JSON(http.StatusOK, out)
}

// DeleteAllMachines clears the registry. force_clean=true removes
// everything; otherwise machines with active tasks are skipped.
func (h *Handler) DeleteAllMachines(c *gin.Context) {
	// An absent or unparsable body means default strict mode.
	var body map[string]any
	_ = c.ShouldBindJSON(&body)

	forceClean := strings.EqualFold(fmt.Sprintf("%v", body["force_clean"]), "true")

	removed, skipped, err := h.store.DeleteAllMachines(c.Request.Context(), forceClean)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if forceClean {
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Force deleted %d machines and all tasks", removed),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Deleted %d machines, skipped %d with active tasks", removed, skipped),
	})
}
