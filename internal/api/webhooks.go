package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/callagent/domain/entities"
	"github.com/satriahrh/arunika/callagent/internal/config"
	"github.com/satriahrh/arunika/callagent/internal/metrics"
	"github.com/satriahrh/arunika/callagent/usecase"
)

const (
	RouteInboundCall   = "/inbound-call"
	RouteTranscription = "/transcription"
	RouteOutboundCall  = "/outbound-call"
)

// WebhookHandler serves the platform's call lifecycle webhooks
type WebhookHandler struct {
	flow   usecase.CallFlow
	format string

	// transcriptionPath is the gather actionHook the platform posts back to
	transcriptionPath string

	logger *zap.Logger
}

// NewWebhookHandler creates a webhook handler. format selects the response
// body shape, config.FormatEnvelope or config.FormatVerbs. actionHook is the
// path transcriptions arrive on and must match the gather instructions.
func NewWebhookHandler(flow usecase.CallFlow, format, actionHook string, logger *zap.Logger) *WebhookHandler {
	if format == "" {
		format = config.FormatEnvelope
	}
	if actionHook == "" {
		actionHook = RouteTranscription
	}
	return &WebhookHandler{
		flow:              flow,
		format:            format,
		transcriptionPath: actionHook,
		logger:            logger,
	}
}

// TranscriptionPath returns the route transcriptions are served on
func (h *WebhookHandler) TranscriptionPath() string {
	return h.transcriptionPath
}

// Inbound handles POST /inbound-call
func (h *WebhookHandler) Inbound(c echo.Context) error {
	return h.serve(c, RouteInboundCall, "inbound call received", func(ctx context.Context, raw json.RawMessage) (entities.InstructionList, error) {
		payload, ok := entities.ParseInboundEvent(raw)
		if !ok {
			h.logger.Warn("Inbound payload is not an object, greeting without call fields",
				zap.ByteString("payload", raw))
		}
		return h.flow.Inbound(ctx, payload)
	})
}

// Transcription handles POST on the gather action hook, /transcription by default
func (h *WebhookHandler) Transcription(c echo.Context) error {
	return h.serve(c, h.transcriptionPath, "transcription received", func(ctx context.Context, raw json.RawMessage) (entities.InstructionList, error) {
		var payload entities.TranscriptionPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode transcription payload: %w", err)
		}
		return h.flow.Transcription(ctx, &payload)
	})
}

// OutboundStatus handles POST /outbound-call
func (h *WebhookHandler) OutboundStatus(c echo.Context) error {
	return h.serve(c, RouteOutboundCall, "outbound call status update", func(ctx context.Context, raw json.RawMessage) (entities.InstructionList, error) {
		var payload entities.OutboundStatusPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode outbound payload: %w", err)
		}
		return h.flow.OutboundStatus(ctx, &payload)
	})
}

type buildFunc func(ctx context.Context, raw json.RawMessage) (entities.InstructionList, error)

// serve logs the payload, runs build and writes the instructions. Any error
// or panic past this point answers 503 with no body.
func (h *WebhookHandler) serve(c echo.Context, route, event string, build buildFunc) (err error) {
	raw := payloadFrom(c)
	logger := h.logger.With(
		zap.String("route", route),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))

	logger.Info(event, zap.ByteString("payload", raw))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while processing webhook",
				zap.Any("panic", r),
				zap.ByteString("payload", raw))
			err = h.unavailable(c, route)
		}
	}()

	// The platform hanging up must not abort an in-flight completion
	ctx := context.WithoutCancel(c.Request().Context())

	list, err := build(ctx, raw)
	if err != nil {
		logger.Error("Error processing webhook", zap.Error(err), zap.ByteString("payload", raw))
		return h.unavailable(c, route)
	}

	body, err := h.encode(list)
	if err != nil {
		logger.Error("Error encoding instructions", zap.Error(err), zap.ByteString("payload", raw))
		return h.unavailable(c, route)
	}

	metrics.ObserveWebhook(route, http.StatusOK)
	return c.JSONBlob(http.StatusOK, body)
}

func (h *WebhookHandler) encode(list entities.InstructionList) ([]byte, error) {
	if h.format == config.FormatVerbs {
		return json.Marshal(list)
	}
	return json.Marshal(entities.WebhookResponse{Instructions: list})
}

func (h *WebhookHandler) unavailable(c echo.Context, route string) error {
	metrics.ObserveWebhook(route, http.StatusServiceUnavailable)
	return c.NoContent(http.StatusServiceUnavailable)
}
