package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// APIError describes a rejected request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func dataResponse(c echo.Context, status int, data any) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func successResponse(c echo.Context, data any) error {
	return dataResponse(c, http.StatusOK, data)
}

func errorResponse(c echo.Context, status int, code, message string) error {
	return dataResponse(c, status, APIError{Code: code, Message: message})
}

func badRequest(c echo.Context, message string) error {
	return errorResponse(c, http.StatusBadRequest, "ERR_BAD_REQUEST", message)
}
