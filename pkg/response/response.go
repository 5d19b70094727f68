package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess      = 2000
	CodeParamInvalid = 4000
	CodeUnauthorized = 4010
	CodeForbidden    = 4030
	CodeNotFound     = 4040
	CodeInternal     = 5000
)

var msg = map[int]string{
	CodeSuccess:      "success",
	CodeParamInvalid: "invalid request parameter",
	CodeUnauthorized: "unauthorized",
	CodeForbidden:    "forbidden",
	CodeNotFound:     "not found",
	CodeInternal:     "internal error",
}

var httpStatus = map[int]int{
	CodeSuccess:      http.StatusOK,
	CodeParamInvalid: http.StatusBadRequest,
	CodeUnauthorized: http.StatusUnauthorized,
	CodeForbidden:    http.StatusForbidden,
	CodeNotFound:     http.StatusNotFound,
	CodeInternal:     http.StatusInternalServerError,
}

type Body struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func Message(code int) string {
	if m, ok := msg[code]; ok {
		return m
	}
	return msg[CodeInternal]
}

// JSON writes the standard envelope for code, with an optional payload.
func JSON(c *gin.Context, code int, data any) {
	status, ok := httpStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.JSON(status, Body{Code: code, Message: Message(code), Data: data})
}

// Error writes the envelope with an overriding detail message.
func Error(c *gin.Context, code int, detail string) {
	status, ok := httpStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := Body{Code: code, Message: Message(code)}
	if detail != "" {
		body.Message = detail
	}
	c.JSON(status, body)
}
