package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK writes the success envelope.
func OK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// OKMessage writes the success envelope with a human-readable message.
func OKMessage(c *gin.Context, status int, msg string, data any) {
	body := gin.H{"success": true, "message": msg}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// Fail renders err using the error taxonomy; unknown errors become a 500
// without leaking internals.
func Fail(c *gin.Context, err error) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		body := gin.H{"success": false, "message": apiErr.Message}
		if len(apiErr.Fields) > 0 {
			body["errors"] = apiErr.Fields
		}
		if apiErr.Kind == KindStore {
			log.Printf("store error: %v", err)
			body["message"] = "Internal server error"
		}
		c.JSON(apiErr.Status(), body)
		return
	}
	log.Printf("unexpected error: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
}

// BadRequest is a shorthand for malformed request bodies.
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msg})
}
