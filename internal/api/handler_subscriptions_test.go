package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionLifecycle(t *testing.T) {
	router, s := setupRouter(t)

	m1, _, err := s.GetOrCreateMachineByIP(context.Background(), "10.0.0.1", "A")
	require.NoError(t, err)
	m2, _, err := s.GetOrCreateMachineByIP(context.Background(), "10.0.0.2", "B")
	require.NoError(t, err)

	endpoint := "https://push.example.com/sub/abc"

	w := doJSON(t, router, http.MethodPut, "/api/subscriptions", map[string]any{
		"endpoint":            endpoint,
		"p256dh":              "key",
		"auth":                "secret",
		"subscribed_machines": []int64{m1.ID, m2.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		SubscribedMachines []int64 `json:"subscribed_machines"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.ElementsMatch(t, []int64{m1.ID, m2.ID}, body.SubscribedMachines)

	// A second PUT replaces the watched set, it does not append.
	w = doJSON(t, router, http.MethodPut, "/api/subscriptions", map[string]any{
		"endpoint":            endpoint,
		"p256dh":              "key",
		"auth":                "secret",
		"subscribed_machines": []int64{m2.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []int64{m2.ID}, body.SubscribedMachines)

	w = doJSON(t, router, http.MethodDelete, "/api/subscriptions", map[string]any{"endpoint": endpoint})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutSubscriptionValidation(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, http.MethodPut, "/api/subscriptions", map[string]any{"endpoint": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
