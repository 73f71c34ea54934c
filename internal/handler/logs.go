// internal/handler/logs.go

package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MuhdNihalCY/wpdebuglog/internal/debuglog"
	"github.com/MuhdNihalCY/wpdebuglog/internal/logger"
	"github.com/MuhdNihalCY/wpdebuglog/internal/security"
	"github.com/MuhdNihalCY/wpdebuglog/internal/validation"
	"github.com/gin-gonic/gin"
)

// maxBodySize bounds POST bodies on the admin API.
const maxBodySize = 1 << 20

// ActionTokenHeader carries the action token on clear and retention requests.
const ActionTokenHeader = "X-Action-Token"

// LogStore is the part of *debuglog.Logger the admin API needs.
type LogStore interface {
	Log(r debuglog.Record)
	LogError(caller, message string, context map[string]interface{}, meta map[string]string)
	Tail(n int) ([]string, error)
	Clear() error
	EnforceRetention(policy debuglog.RetentionPolicy) (int, []error)
	Policy() debuglog.RetentionPolicy
}

// LogsHandlerDeps holds dependencies for the log viewing and management handlers.
type LogsHandlerDeps struct {
	Store        LogStore
	AppLogger    *logger.AppLogger
	TokenSecret  string
	TokenTTL     time.Duration
	DefaultLines int
	MaxLines     int
}

func (d LogsHandlerDeps) check() {
	if d.Store == nil {
		panic("logs handler requires a non-nil Store")
	}
	if d.AppLogger == nil {
		panic("logs handler requires a non-nil AppLogger")
	}
}

// NewTailHandler serves GET /api/logs?lines=N. The response also carries
// fresh action tokens for the clear and retention endpoints.
func NewTailHandler(deps LogsHandlerDeps) gin.HandlerFunc {
	deps.check()

	return func(c *gin.Context) {
		n := deps.DefaultLines
		if raw := c.Query("lines"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "lines must be a non-negative integer"})
				return
			}
			n = parsed
		}
		if deps.MaxLines > 0 && n > deps.MaxLines {
			n = deps.MaxLines
		}

		lines, err := deps.Store.Tail(n)
		if err != nil {
			deps.AppLogger.Error("Tail handler: %v", err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}

		resp := gin.H{"lines": lines, "count": len(lines)}
		if tokens := issueTokens(deps); tokens != nil {
			resp["tokens"] = tokens
		}
		c.JSON(http.StatusOK, resp)
	}
}

func issueTokens(deps LogsHandlerDeps) gin.H {
	if deps.TokenSecret == "" {
		return nil
	}
	tokens := gin.H{}
	for _, action := range []string{security.ActionClear, security.ActionRetention} {
		token, err := security.GenerateToken(deps.TokenSecret, action, deps.TokenTTL)
		if err != nil {
			deps.AppLogger.Error("Failed to generate %s token: %v", action, err)
			return nil
		}
		tokens[action] = token
	}
	return tokens
}

// WriteRequestBody is the body of POST /api/logs.
type WriteRequestBody struct {
	Level   string                 `json:"level" binding:"required"`
	Caller  string                 `json:"caller"`
	Payload interface{}            `json:"payload"`
	Context map[string]interface{} `json:"context"`
}

// NewWriteHandler serves POST /api/logs. An ERROR record that carries a
// context is written as an error report with request metadata.
func NewWriteHandler(deps LogsHandlerDeps) gin.HandlerFunc {
	deps.check()

	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)

		var body WriteRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			deps.AppLogger.Warn("Write handler: JSON binding error for IP %s: %v", c.ClientIP(), err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		level, err := debuglog.ParseLevel(body.Level)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := validation.IsValidCaller(body.Caller, validation.DefaultMaxCallerLength); err != nil {
			deps.AppLogger.Warn("Write handler: invalid caller from IP %s: %v", c.ClientIP(), err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		payload, err := validation.SanitizePayload(body.Payload)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if level == debuglog.ERROR && body.Context != nil {
			context, err := validation.SanitizeMapRecursively(body.Context, validation.DefaultMaxDepth, 0,
				validation.DefaultMaxKeyLength, validation.DefaultMaxStringLength)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			message, ok := payload.(string)
			if !ok {
				message = debuglog.RenderPayload(debuglog.FromValue(payload))
			}
			deps.Store.LogError(body.Caller, message, context, RequestMeta(c))
		} else {
			deps.Store.Log(debuglog.NewRecord(level, body.Caller, debuglog.FromValue(payload)))
		}

		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}

// RequestMeta collects the request details attached to error reports.
func RequestMeta(c *gin.Context) map[string]string {
	return map[string]string{
		"request_uri": c.Request.RequestURI,
		"user_agent":  c.Request.UserAgent(),
		"client_ip":   c.ClientIP(),
	}
}

// actionRequestBody optionally carries the token in JSON instead of the header.
type actionRequestBody struct {
	Token string `json:"token"`
}

// authorize validates the action token and writes a 403 on failure.
func authorize(c *gin.Context, deps LogsHandlerDeps, action string) bool {
	token := c.GetHeader(ActionTokenHeader)
	if token == "" && c.Request.ContentLength != 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		var body actionRequestBody
		if err := c.ShouldBindJSON(&body); err == nil {
			token = body.Token
		}
	}
	if token == "" || deps.TokenSecret == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "missing action token"})
		return false
	}

	valid, err := security.ValidateToken(deps.TokenSecret, action, token)
	if err != nil || !valid {
		deps.AppLogger.Warn("Rejected %s token from IP %s: valid=%v err=%v", action, c.ClientIP(), valid, err)
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired action token"})
		return false
	}
	return true
}

// NewClearHandler serves POST /api/logs/clear.
func NewClearHandler(deps LogsHandlerDeps) gin.HandlerFunc {
	deps.check()

	return func(c *gin.Context) {
		if !authorize(c, deps, security.ActionClear) {
			return
		}
		if err := deps.Store.Clear(); err != nil {
			deps.AppLogger.Error("Clear handler: %v", err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		deps.AppLogger.Info("Debug log cleared by %s", c.ClientIP())
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	}
}

// NewRetentionHandler serves POST /api/retention and runs one sweep with
// the configured policy.
func NewRetentionHandler(deps LogsHandlerDeps) gin.HandlerFunc {
	deps.check()

	return func(c *gin.Context) {
		if !authorize(c, deps, security.ActionRetention) {
			return
		}

		removed, errs := deps.Store.EnforceRetention(deps.Store.Policy())
		messages := make([]string, 0, len(errs))
		for _, err := range errs {
			if errors.Is(err, debuglog.ErrUnavailable) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			messages = append(messages, err.Error())
		}

		status := "ok"
		if len(messages) > 0 {
			status = "partial"
			deps.AppLogger.Warn("Retention handler: %d deletion(s) failed", len(messages))
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "removed": removed, "errors": messages})
	}
}

// statusFor maps debug log errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, debuglog.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
