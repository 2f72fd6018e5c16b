package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/callagent/internal/auth"
	"github.com/satriahrh/arunika/callagent/internal/websocket"
)

// WebsocketOptions enables the websocket transport on InitRoutes
type WebsocketOptions struct {
	Hub  *websocket.Hub
	Path string
	// JWTSecret turns on bearer-token auth when non-empty
	JWTSecret []byte
}

// InitRoutes initializes all API routes. ws may be nil.
func InitRoutes(e *echo.Echo, webhooks *WebhookHandler, ws *WebsocketOptions, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:  "ok",
			Service: "call-agent",
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Platform webhooks
	body := BodyParser()
	e.POST(RouteInboundCall, webhooks.Inbound, body)
	e.POST(webhooks.TranscriptionPath(), webhooks.Transcription, body)
	e.POST(RouteOutboundCall, webhooks.OutboundStatus, body)

	if ws == nil || ws.Hub == nil {
		return
	}

	e.GET(ws.Path, func(c echo.Context) error {
		return websocketWithAuth(ws, c, logger)
	})
}

// websocketWithAuth checks the bearer token, when one is required, before
// upgrading the connection
func websocketWithAuth(ws *WebsocketOptions, c echo.Context, logger *zap.Logger) error {
	if len(ws.JWTSecret) == 0 {
		return websocket.HandleWebSocket(ws.Hub, c, "")
	}

	token, err := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		logger.Warn("WebSocket connection rejected: missing token")
		return echo.NewHTTPError(http.StatusUnauthorized, "JWT token is required in Authorization header")
	}

	claims, err := auth.ValidateToken(ws.JWTSecret, token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired JWT token")
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("subject", claims.Subject),
		zap.String("account_sid", claims.AccountSid))

	return websocket.HandleWebSocket(ws.Hub, c, claims.Subject)
}
