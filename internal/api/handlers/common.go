// Package handlers provides HTTP handlers for the tradegate API.
//
// This package implements request handlers for health checks, signal intake,
// owner commands, and the status query interface.
package handlers

import (
	"github.com/gin-gonic/gin"
)

// SuccessResponse represents a standardized success response with data.
type SuccessResponse struct {
	// Data contains the response payload.
	Data interface{} `json:"data,omitempty"`

	// Message is an optional success message.
	Message string `json:"message,omitempty"`
}

// respondSuccess sends a standardized success response with data. Errors go
// through middleware.RespondError.
func respondSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, SuccessResponse{
		Data: data,
	})
}
