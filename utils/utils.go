package utils

import (
	"net"
	"net/http"
	"strings"
	"time"

	"school-portal/internal/apperror"
	"school-portal/internal/logging"

	"github.com/gin-gonic/gin"
)

type SuccessResponse struct {
	Success bool  `json:"success"`
	Data    any   `json:"data"`
	Meta    *Meta `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

func CreateErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error: APIError{
			Code:    code,
			Message: message,
		},
	}
}

func CreateSuccessResponse(data any) SuccessResponse {
	return SuccessResponse{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Timestamp: time.Now(),
		},
	}
}

func SendSuccess(c *gin.Context, status int, data any) {
	c.JSON(status, CreateSuccessResponse(data))
}

func SendError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, CreateErrorResponse(code, message))
}

// SendAppError maps an error onto the envelope. Internal details never leave
// the process in production.
func SendAppError(c *gin.Context, err error, production bool) {
	appErr := apperror.As(err)
	status := apperror.HTTPStatus(appErr.Kind)

	code := appErr.Code
	message := appErr.Message
	if appErr.Kind == apperror.KindInternal {
		logging.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		code = "INTERNAL_ERROR"
		if production {
			message = "internal server error"
		} else {
			message = appErr.Error()
		}
	}
	SendError(c, status, code, message)
}

// GetClientIP prefers proxy headers over the socket address.
func GetClientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if real := strings.TrimSpace(c.GetHeader("X-Real-IP")); net.ParseIP(real) != nil {
		return real
	}
	return c.ClientIP()
}

func GetDeviceInfo(c *gin.Context) string {
	ua := c.GetHeader("User-Agent")
	if ua == "" {
		return "unknown"
	}
	return ua
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}
