package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateUserEndpoint(t *testing.T) {
	router, _ := SetupTestEnvironment(t)

	w := doJSON(router, "POST", "/api/users/alice", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "alice")

	// 用户名已被占用
	w = doJSON(router, "POST", "/api/users/alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Username is already taken")
}

func TestCreateUserInvalidUsername(t *testing.T) {
	router, _ := SetupTestEnvironment(t)

	// 过短
	w := doJSON(router, "POST", "/api/users/ab", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 过长
	w = doJSON(router, "POST", "/api/users/"+strings.Repeat("x", 51), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
