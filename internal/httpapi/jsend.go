package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// jsend envelope: status is "success", "fail" (client problem, data explains),
// or "error" (server problem, message explains).
type jsendBody struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, jsendBody{Status: "success", Data: data})
}

func created(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, jsendBody{Status: "success", Data: data})
}

func fail(c echo.Context, status int, message string, data any) error {
	if data == nil {
		data = map[string]string{"message": message}
	}
	return c.JSON(status, jsendBody{Status: "fail", Data: data, Message: message})
}

func failValidation(c echo.Context, fields map[string]string) error {
	return fail(c, http.StatusBadRequest, "Validation failed", fields)
}

func failNotFound(c echo.Context, message string) error {
	return fail(c, http.StatusNotFound, message, nil)
}

func failConflict(c echo.Context, message string) error {
	return fail(c, http.StatusConflict, message, nil)
}

func internalError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, jsendBody{Status: "error", Message: message})
}
