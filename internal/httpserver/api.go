// Package httpserver exposes the classification and feedback workflow as a
// JSON API plus the single-page web UI that drives it.
package httpserver

import (
	"crypto/rand"
	"io"
	"log"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/SayHoang/plantidentify/internal/conf"
	"github.com/SayHoang/plantidentify/internal/errors"
	"github.com/SayHoang/plantidentify/internal/feedback"
	"github.com/SayHoang/plantidentify/internal/logging"
	"github.com/SayHoang/plantidentify/internal/observability"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings

	workflow *feedback.Workflow
	sessions *sessionRegistry
	metrics  *observability.Metrics

	apiLogger      *slog.Logger
	apiLevelVar    *slog.LevelVar
	apiLoggerClose func() error
}

// New creates the API controller and registers all routes on e.
func New(e *echo.Echo, settings *conf.Settings, workflow *feedback.Workflow,
	metrics *observability.Metrics) (*Controller, error) {

	c := &Controller{
		Echo:     e,
		Settings: settings,
		workflow: workflow,
		metrics:  metrics,
		sessions: newSessionRegistry(settings.Server.SessionSecret, settings.Server.SessionTTL),
	}

	// Structured logger for API requests
	apiLogPath := "logs/web.log"
	c.apiLevelVar = new(slog.LevelVar)
	c.apiLevelVar.Set(slog.LevelInfo)
	if settings.Debug {
		c.apiLevelVar.Set(slog.LevelDebug)
	}

	apiLogger, closeFunc, err := logging.NewFileLogger(apiLogPath, "web", c.apiLevelVar)
	if err != nil {
		log.Printf("Failed to initialize web file logger at %s: %v. Falling back to a disabled logger.", apiLogPath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: c.apiLevelVar})
		c.apiLogger = slog.New(fbHandler).With("service", "web")
		c.apiLoggerClose = func() error { return nil }
	} else {
		c.apiLogger = apiLogger
		c.apiLoggerClose = closeFunc
	}

	c.Group = e.Group("/api/v1")
	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.CORS())
	c.Group.Use(middleware.BodyLimit("10M")) // uploads are photos, not archives
	c.Group.Use(c.LoggingMiddleware())

	c.initRoutes()

	return c, nil
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	c.Group.POST("/upload", c.UploadImage)
	c.Group.POST("/classify", c.ClassifyImage)
	c.Group.GET("/state", c.GetState)

	c.Group.POST("/feedback/accept", c.AcceptPrediction)
	c.Group.POST("/feedback/reject", c.RejectPrediction)
	c.Group.POST("/feedback/confirm-nearest", c.ConfirmNearest)
	c.Group.POST("/feedback/search", c.OpenSearch)

	c.Group.POST("/search/query", c.SearchQuery)
	c.Group.POST("/search/select", c.SelectCandidate)
	c.Group.POST("/search/confirm", c.ConfirmSelection)

	c.registerUIRoutes()

	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// LoggingMiddleware logs every API request through the structured web logger.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			err := next(ctx)

			if c.apiLogger == nil {
				return err
			}

			req := ctx.Request()
			res := ctx.Response()
			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.String("ip", ctx.RealIP()),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}
			c.apiLogger.LogAttrs(req.Context(), slog.LevelInfo, "API Request", attrs...)

			return err
		}
	}
}

// Shutdown releases controller resources.
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			log.Printf("Error closing web log file: %v", err)
		}
	}
}

// ErrorResponse is the uniform error payload for every API failure.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a short random identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs the failure and writes the uniform error payload.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	if c.apiLogger != nil {
		c.apiLogger.Error("API Error",
			"correlation_id", resp.CorrelationID,
			"message", message,
			"error", resp.Error,
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ctx.RealIP())
	}

	return ctx.JSON(code, resp)
}

// statusForError maps workflow error categories onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryState):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryValidation),
		errors.IsCategory(err, errors.CategoryImageProcess):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
