package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthCheck(t *testing.T) {
	router, _ := SetupTestEnvironment(t)

	w := doJSON(router, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestSystemStatus(t *testing.T) {
	router, _ := SetupTestEnvironment(t)
	registerUser(t, router, "alice")
	createPoll(t, router, validPollBody("alice"))

	w := doJSON(router, "GET", "/api/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "ok", resp["database"])
	assert.Equal(t, float64(1), resp["active_polls"])
	assert.NotEmpty(t, resp["uptime"])
}
