package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/callagent/domain/entities"
	"github.com/satriahrh/arunika/callagent/internal/metrics"
	"github.com/satriahrh/arunika/callagent/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Subprotocol the platform asks for when it opens the socket.
	Subprotocol = "ws.jambonz.org"
)

var upgrader = websocket.Upgrader{
	// The peer is the telephony platform, not a browser
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	Subprotocols:    []string{Subprotocol},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Hub keeps track of the open platform sessions and answers their messages
// with the same call flow the HTTP webhooks use.
type Hub struct {
	sessions map[string]*Session

	register   chan *Session
	unregister chan *Session

	// Closed when Run returns
	stopped chan struct{}

	mu sync.RWMutex

	flow       usecase.CallFlow
	actionHook string

	logger *zap.Logger
}

// NewHub creates a new websocket hub. actionHook is the gather callback path
// that verb:hook messages are matched against.
func NewHub(flow usecase.CallFlow, actionHook string, logger *zap.Logger) *Hub {
	if actionHook == "" {
		actionHook = usecase.DefaultActionHook
	}
	return &Hub{
		sessions:   make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		stopped:    make(chan struct{}),
		flow:       flow,
		actionHook: actionHook,
		logger:     logger,
	}
}

// Run starts the hub's main loop. When ctx is done every open session is
// closed and Run returns.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case session := <-h.register:
			h.mu.Lock()
			h.sessions[session.id] = session
			h.mu.Unlock()
			metrics.WebsocketSessions.Inc()
			h.logger.Info("Session registered", zap.String("session_id", session.id))

		case session := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.sessions[session.id]; ok {
				delete(h.sessions, session.id)
				metrics.WebsocketSessions.Dec()
			}
			h.mu.Unlock()
			h.logger.Info("Session unregistered", zap.String("session_id", session.id))

		case <-ctx.Done():
			h.mu.Lock()
			for id, session := range h.sessions {
				session.close()
				delete(h.sessions, id)
				metrics.WebsocketSessions.Dec()
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// Count returns the number of registered sessions
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Session is one websocket connection from the platform. A connection may
// carry several calls; each message names its call_sid.
type Session struct {
	hub *Hub

	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Closed once the session is over; senders give up instead of blocking.
	done      chan struct{}
	closeOnce sync.Once

	id      string
	subject string

	// In-flight message handlers
	wg sync.WaitGroup

	logger *zap.Logger
}

// HandleWebSocket upgrades the request and serves the platform session.
// subject identifies the authenticated peer and is empty when auth is off.
func HandleWebSocket(hub *Hub, c echo.Context, subject string) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	id := uuid.NewString()
	session := &Session{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 64),
		done:    make(chan struct{}),
		id:      id,
		subject: subject,
		logger: hub.logger.With(
			zap.String("session_id", id),
			zap.String("subject", subject)),
	}

	select {
	case hub.register <- session:
	case <-hub.stopped:
		conn.Close()
		return nil
	}

	go session.writePump()
	go session.readPump()

	return nil
}

// close ends the session. The write pump sends the close frame and then
// closes the connection, which also stops the read pump.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// enqueue hands payload to the write pump. It reports false when the session
// has already closed.
func (s *Session) enqueue(payload []byte) bool {
	select {
	case s.send <- payload:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) sendJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode message", zap.Error(err))
		return
	}
	if !s.enqueue(payload) {
		s.logger.Warn("Session closed before message could be sent")
	}
}

// readPump reads platform messages until the connection fails.
func (s *Session) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.stopped:
		}
		s.close()
		s.wg.Wait()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			s.logger.Warn("Received unknown message type", zap.Int("type", messageType))
			continue
		}

		msg, err := ParseMessage(raw)
		if err != nil {
			s.logger.Error("Failed to parse message", zap.Error(err), zap.ByteString("message", raw))
			continue
		}

		// Completions can take seconds; keep reading pongs meanwhile
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(msg)
		}()
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Error("Failed to write message", zap.Error(err))
				s.close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handle runs one platform message through the call flow
func (s *Session) handle(msg *Message) {
	logger := s.logger.With(
		zap.String("type", string(msg.Type)),
		zap.String("msgid", msg.MsgID),
		zap.String("call_sid", msg.CallSid))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while processing message",
				zap.Any("panic", r),
				zap.ByteString("payload", msg.payload()))
			if msg.MsgID != "" {
				s.sendJSON(NewAck(msg.MsgID, nil))
			}
		}
	}()

	ctx := context.Background()

	switch msg.Type {
	case MessageTypeSessionNew, MessageTypeSessionRedir:
		logger.Info("inbound call received", zap.ByteString("payload", msg.payload()))
		list, err := s.inbound(ctx, msg)
		s.ack(logger, msg, list, err)

	case MessageTypeVerbHook:
		logger.Info("hook received", zap.String("hook", msg.Hook), zap.ByteString("payload", msg.payload()))
		if msg.Hook != s.hub.actionHook {
			logger.Warn("Unknown hook, acking without verbs", zap.String("hook", msg.Hook))
			s.sendJSON(NewAck(msg.MsgID, nil))
			return
		}
		list, err := s.transcription(ctx, msg)
		s.ack(logger, msg, list, err)

	case MessageTypeCallStatus:
		logger.Info("call status update", zap.ByteString("payload", msg.payload()))
		list, err := s.outboundStatus(ctx, msg)
		if err != nil {
			logger.Error("Error processing message", zap.Error(err), zap.ByteString("payload", msg.payload()))
			return
		}
		if len(list) > 0 {
			s.sendJSON(NewRedirect(msg.CallSid, list))
		}

	case MessageTypeVerbStatus:
		logger.Debug("verb status", zap.ByteString("payload", msg.payload()))

	case MessageTypeJambonzError:
		logger.Error("Platform reported an error", zap.ByteString("payload", msg.payload()))

	default:
		logger.Warn("Unknown message type")
	}
}

func (s *Session) ack(logger *zap.Logger, msg *Message, list entities.InstructionList, err error) {
	if err != nil {
		logger.Error("Error processing message", zap.Error(err), zap.ByteString("payload", msg.payload()))
		s.sendJSON(NewAck(msg.MsgID, nil))
		return
	}
	s.sendJSON(NewAck(msg.MsgID, list))
}

func (s *Session) inbound(ctx context.Context, msg *Message) (entities.InstructionList, error) {
	payload, ok := entities.ParseInboundEvent(msg.payload())
	if !ok {
		s.logger.Warn("Inbound payload is not an object, greeting without call fields",
			zap.ByteString("payload", msg.payload()))
	}
	return s.hub.flow.Inbound(ctx, payload)
}

func (s *Session) transcription(ctx context.Context, msg *Message) (entities.InstructionList, error) {
	var payload entities.TranscriptionPayload
	if err := json.Unmarshal(msg.payload(), &payload); err != nil {
		return nil, fmt.Errorf("decode transcription payload: %w", err)
	}
	return s.hub.flow.Transcription(ctx, &payload)
}

func (s *Session) outboundStatus(ctx context.Context, msg *Message) (entities.InstructionList, error) {
	var payload entities.OutboundStatusPayload
	if err := json.Unmarshal(msg.payload(), &payload); err != nil {
		return nil, fmt.Errorf("decode call status payload: %w", err)
	}
	return s.hub.flow.OutboundStatus(ctx, &payload)
}
