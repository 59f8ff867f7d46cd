package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/issuetrack/backend/internal/service"
)

// Response helpers

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

func Error(c *gin.Context, httpCode int, code int, message string) {
	c.JSON(httpCode, gin.H{
		"code":    code,
		"message": message,
		"data":    nil,
	})
}

func BadRequest(c *gin.Context, code int, message string) {
	Error(c, http.StatusBadRequest, code, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, 50001, message)
}

// Fail writes err using its five-digit code. Errors without one are logged
// and reported as 500.
func Fail(c *gin.Context, err error) {
	var coded *service.CodedError
	if errors.As(err, &coded) {
		if coded.HTTPStatus() >= http.StatusInternalServerError {
			log.Printf("[handler] %s %s: %v", c.Request.Method, c.FullPath(), errors.Unwrap(coded))
		}
		Error(c, coded.HTTPStatus(), coded.Code, coded.Msg)
		return
	}
	code, msg := parseErrorCode(err)
	status := code / 100
	if http.StatusText(status) == "" {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.Printf("[handler] %s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal error"
	}
	Error(c, status, code, msg)
}

func parseID(s string) uint {
	id, _ := strconv.ParseUint(s, 10, 64)
	return uint(id)
}

// paramID reads a numeric path parameter, answering 400 when it is not one.
func paramID(c *gin.Context, name string) (uint, bool) {
	id := parseID(c.Param(name))
	if id == 0 {
		BadRequest(c, 40001, "invalid "+name)
		return 0, false
	}
	return id, true
}

func parseErrorCode(err error) (int, string) {
	msg := err.Error()
	if len(msg) > 5 && msg[5] == ':' {
		code, e := strconv.Atoi(msg[:5])
		if e == nil {
			return code, msg[6:]
		}
	}
	return 50001, msg
}
