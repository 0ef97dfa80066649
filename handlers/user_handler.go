package handlers

import (
	"net/http"

	"timed-voting-backend/database"

	"github.com/gin-gonic/gin"
)

// CreateUser handles password-less user registration by username.
func CreateUser(c *gin.Context) {
	username := c.Param("username")
	if len(username) < 3 || len(username) > 50 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username must be 3-50 characters"})
		return
	}

	alreadyExisted, err := database.CreateUser(username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}
	if alreadyExisted {
		c.JSON(http.StatusConflict, gin.H{"error": "Username is already taken"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"username": username})
}
