// Package response shapes every API payload as the
// {success, message?, data?} envelope.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"taskhub/internal/apperr"
)

// Envelope is the wire shape of every response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// OK writes a 200 with data.
func OK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 with an optional message and data.
func Created(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

// Message writes a success envelope with only a message.
func Message(c echo.Context, status int, message string) error {
	return c.JSON(status, Envelope{Success: true, Message: message})
}

// Updated writes a 200 with a message and data.
func Updated(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// Error writes a failure envelope with the given status.
func Error(c echo.Context, status int, message string) error {
	return c.JSON(status, Envelope{Success: false, Message: message})
}

// FromError maps an error to the envelope. Taxonomy errors carry their own
// status; anything else is an unexpected failure and surfaces as a generic
// 500 (detail belongs in logs, never in the body).
func FromError(c echo.Context, err error, fallback string) error {
	if e, ok := apperr.As(err); ok {
		return Error(c, e.Status, e.Message)
	}
	return Error(c, http.StatusInternalServerError, fallback)
}
