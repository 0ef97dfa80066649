package handlers

import (
	"net/http"
	"runtime"
	"time"

	"timed-voting-backend/cache"
	"timed-voting-backend/database"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// HealthCheck 健康检查接口
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus reports component health and runtime counters for operators.
func SystemStatus(c *gin.Context) {
	dbStatus := "ok"
	if sqlDB, err := database.DB.DB(); err != nil {
		dbStatus = "error"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error"
	}

	redisStatus := "disabled"
	if cache.Available() {
		redisStatus = "ok"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime":         time.Since(startTime).String(),
		"goroutines":     runtime.NumGoroutine(),
		"database":       dbStatus,
		"redis":          redisStatus,
		"active_polls":   registry.Len(),
		"relay_mode":     relay.String(),
		"relay_messages": relay.Stats(),
	})
}
