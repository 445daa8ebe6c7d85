package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"arduino-fleet-backend/config"
	"arduino-fleet-backend/internal/api"
	"arduino-fleet-backend/internal/model"
	"arduino-fleet-backend/internal/store"
)

// TestMachineRegistryLifecycle walks a machine through its full life: a
// device reports a task, the dashboard sees it, removal is blocked while
// the task is active, the task is killed, and the registry is cleared.
func TestMachineRegistryLifecycle(t *testing.T) {
	// --- Test Setup ---

	// 1. Setup an in-memory SQLite database for testing.
	testDB, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to the in-memory database: %v", err)
	}
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()

	err = testDB.AutoMigrate(&model.Machine{}, &model.Task{}, &model.PushSubscription{})
	assert.NoError(t, err)

	// 2. Assemble the handler and router over the real store.
	gin.SetMode(gin.TestMode)
	appStore := store.NewGormStore(testDB)
	handler := api.NewHandler(appStore, nil, nil, nil, nil)
	router := api.NewRouter(&config.ServerConfig{
		RateLimitPerSec: 10000,
		RateLimitBurst:  10000,
		CacheTTLSeconds: 1,
	}, handler)

	post := func(path string, body map[string]any) *httptest.ResponseRecorder {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}
	get := func(path string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// --- Lifecycle ---

	// 3. A device reports a running task; the machine is created implicitly.
	w := post("/api/arduino/task-update", map[string]any{
		"ip": "192.168.1.20", "alias": "greenhouse", "taskName": "water", "status": "running",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var machines []model.Machine
	require.NoError(t, testDB.Find(&machines).Error)
	require.Len(t, machines, 1)
	assert.Equal(t, "greenhouse", machines[0].Alias)
	machineID := machines[0].ID

	// 4. The dashboard sees the machine with its running task.
	w = get("/api/arduino/get-machines")
	require.Equal(t, http.StatusOK, w.Code)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Len(t, listed[0]["tasks"], 1)

	// 5. The wakeup payload is configurable while the task runs.
	w = post(fmt.Sprintf("/api/arduino/wakeup/%d/update", machineID), map[string]any{
		"payload": map[string]any{"valve": "open"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = get(fmt.Sprintf("/api/arduino/wakeup/%d", machineID))
	require.Equal(t, http.StatusOK, w.Code)
	var wakeup map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wakeup))
	assert.Equal(t, map[string]any{"valve": "open"}, wakeup["payload"])

	// 6. Removal is refused while the task is active.
	w = post("/api/arduino/remove-machine", map[string]any{"ip": "192.168.1.20"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 7. The device finishes and kills the task.
	w = post("/api/arduino/task-update", map[string]any{
		"ip": "192.168.1.20", "taskName": "water", "status": "kill",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var taskCount int64
	require.NoError(t, testDB.Model(&model.Task{}).Count(&taskCount).Error)
	assert.Equal(t, int64(0), taskCount)

	// 8. Now the machine can be removed, and the registry ends up empty.
	w = post("/api/arduino/remove-machine", map[string]any{"ip": "192.168.1.20"})
	require.Equal(t, http.StatusOK, w.Code)

	var machineCount int64
	require.NoError(t, testDB.Model(&model.Machine{}).Count(&machineCount).Error)
	assert.Equal(t, int64(0), machineCount)
}
