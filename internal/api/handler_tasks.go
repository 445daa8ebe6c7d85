package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"arduino-fleet-backend/internal/metrics"
	"arduino-fleet-backend/internal/model"
	"arduino-fleet-backend/internal/notification"
	"arduino-fleet-backend/internal/parse"
)

type taskUpdateRequest struct {
	IP       string `json:"ip"`
	ID       *int64 `json:"id"`
	Alias    string `json:"alias"`
	TaskName string `json:"taskName"`
	Notes    string `json:"notes"`
	Status   string `json:"status"`
}

type taskResponse struct {
	TaskName string `json:"taskName"`
	Notes    string `json:"notes"`
	Status   string `json:"status"`
}

// TaskUpdate creates or updates a task for a machine. Status "kill"
// deletes the task instead; any other status upserts the task and
// overwrites the machine alias with the request value.
func (h *Handler) TaskUpdate(c *gin.Context) {
	var req taskUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident, identErr := parse.FromFields(req.IP, req.ID)
	if req.Status == "" || identErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	if req.Status == string(model.StatusKill) {
		h.killTask(c, ident, req.TaskName)
		return
	}

	if req.Alias == "" || req.TaskName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields for running/paused task"})
		return
	}
	if !model.ValidStoredStatus(model.TaskStatus(req.Status)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid task status %q", req.Status)})
		return
	}

	ctx := c.Request.Context()

	var machine *model.Machine
	var err error
	if ident.Kind == parse.ByIP {
		machine, _, err = h.store.GetOrCreateMachineByIP(ctx, ident.IP, req.Alias)
	} else {
		machine, err = h.store.MachineByIdentifier(ctx, ident)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found"})
			return
		}
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	task, err := h.store.GetOrCreateTask(ctx, machine.ID, req.TaskName, req.Notes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// The alias is overwritten on every update, even for unrelated tasks
	// on the same machine. Callers rely on this collapsing behavior.
	task.Status = model.TaskStatus(req.Status)
	task.Notes = req.Notes
	machine.Alias = req.Alias

	if err := h.store.SaveMachine(ctx, machine); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SaveTask(ctx, task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Task %s", task.Status),
		"task": gin.H{
			"ip":       machine.IP,
			"alias":    machine.Alias,
			"taskName": task.TaskName,
			"notes":    task.Notes,
			"status":   task.Status,
		},
	})
}

// killTask deletes the (machine, taskName) task. A missing machine or
// task is reported as zero deletions, never as an error.
func (h *Handler) killTask(c *gin.Context, ident parse.Identifier, taskName string) {
	ctx := c.Request.Context()

	machine, err := h.store.MachineByIdentifier(ctx, ident)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, gin.H{"message": "Task killed, 0 task(s) removed"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	deleted, err := h.store.DeleteTask(ctx, machine.ID, taskName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if deleted > 0 {
		metrics.TasksKilled.Inc()
		if h.pool != nil {
			h.pool.Dispatch(notification.Job{MachineID: machine.ID, TaskName: taskName})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Task killed, %d task(s) removed", deleted),
	})
}

// TaskStatus returns all running tasks for a machine. The identifier is
// tried as a numeric ID first, then as an IP.
func (h *Handler) TaskStatus(c *gin.Context) {
	ident, err := parse.Identify(c.Param("identifier"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing machine identifier"})
		return
	}

	ctx := c.Request.Context()
	machine, err := h.store.MachineByIdentifier(ctx, ident)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	tasks, err := h.store.RunningTasks(ctx, machine.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResponse{TaskName: t.TaskName, Notes: t.Notes, Status: string(t.Status)})
	}
	c.JSON(http.StatusOK, out)
}

// GetTasks returns every running or paused task across all machines,
// annotated with the owning machine.
func (h *Handler) GetTasks(c *gin.Context) {
	tasks, err := h.store.ListActiveTasks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, gin.H{
			"machineId": t.Machine.ID,
			"ip":        t.Machine.IP,
			"alias":     t.Machine.Alias,
			"taskName":  t.TaskName,
			"notes":     t.Notes,
			"status":    t.Status,
		})
	}
	c.JSON(http.StatusOK, out)
}
