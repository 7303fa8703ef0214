// Package chat serves the persistent conversation channel. Each session
// gets at most one live websocket; a new connect supersedes the old one.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/demi-app/demi/backend/internal/middleware"
	"github.com/demi-app/demi/backend/internal/service/ai"
	authservice "github.com/demi-app/demi/backend/internal/service/auth"
	chatservice "github.com/demi-app/demi/backend/internal/service/chat"
	emotionservice "github.com/demi-app/demi/backend/internal/service/emotion"
	"github.com/demi-app/demi/backend/pkg/protocol"
	"github.com/demi-app/demi/backend/pkg/utils"
)

const (
	readDeadline = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Handler upgrades authenticated requests to the chat channel and runs the
// per-connection event loop.
type Handler struct {
	authSvc   *authservice.Service
	chatSvc   *chatservice.Service
	responder ai.Responder
	emotions  *emotionservice.Service
	upgrader  websocket.Upgrader

	mu     sync.Mutex
	active map[string]*channelConn // sessionID -> live channel
}

// New creates the channel handler.
func New(authSvc *authservice.Service, chatSvc *chatservice.Service, responder ai.Responder, emotions *emotionservice.Service) *Handler {
	return &Handler{
		authSvc:   authSvc,
		chatSvc:   chatSvc,
		responder: responder,
		emotions:  emotions,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		active: make(map[string]*channelConn),
	}
}

// RegisterRoutes mounts the channel endpoint. The route must sit behind
// RequireAuth so the identity is on the context before upgrade.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleChannel)
}

// channelConn serializes writes; the reply goroutine and the read loop both
// push events to the same socket.
type channelConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *channelConn) send(typ string, payload any) error {
	env, err := protocol.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteJSON(env)
}

// sendError reports a protocol-level problem without closing the channel.
func (c *channelConn) sendError(detail string) {
	if err := c.send(protocol.EventError, protocol.ErrorPayload{Detail: detail}); err != nil {
		log.Printf("[channel] failed to send error event: %v", err)
	}
}

func (h *Handler) handleChannel(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[channel] upgrade failed: %v", err)
		return
	}
	cc := &channelConn{conn: conn}

	h.register(identity.SessionID, cc)
	defer func() {
		h.unregister(identity.SessionID, cc)
		conn.Close()
	}()

	log.Printf("[channel] connected session=%s", identity.SessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go h.pingLoop(ctx, cc)

	if err := h.sendHistory(ctx, cc, identity.UserID); err != nil {
		log.Printf("[channel] failed to send history: %v", err)
		return
	}

	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[channel] read error: %v", err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readDeadline))
		h.dispatch(ctx, cc, identity, env)
	}
}

// register installs cc as the session's channel, closing any predecessor.
func (h *Handler) register(sessionID string, cc *channelConn) {
	h.mu.Lock()
	old := h.active[sessionID]
	h.active[sessionID] = cc
	h.mu.Unlock()

	if old != nil {
		log.Printf("[channel] superseding previous connection for session=%s", sessionID)
		old.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"),
			time.Now().Add(time.Second))
		old.conn.Close()
	}
}

func (h *Handler) unregister(sessionID string, cc *channelConn) {
	h.mu.Lock()
	if h.active[sessionID] == cc {
		delete(h.active, sessionID)
	}
	h.mu.Unlock()
}

func (h *Handler) pingLoop(ctx context.Context, cc *channelConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendHistory(ctx context.Context, cc *channelConn, userID string) error {
	conversationID, messages, err := h.chatSvc.History(ctx, userID)
	if err != nil {
		return err
	}
	return cc.send(protocol.EventHistory, protocol.HistoryPayload{
		ConversationID: conversationID,
		Messages:       messages,
	})
}

func (h *Handler) dispatch(ctx context.Context, cc *channelConn, identity authservice.Identity, env protocol.Envelope) {
	switch env.Type {
	case protocol.OpSendMessage:
		var payload protocol.SendMessagePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			cc.sendError("malformed send_message payload")
			return
		}
		h.handleSendMessage(ctx, cc, identity, payload.Content)

	case protocol.OpReadReceipt:
		var payload protocol.ReceiptPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			cc.sendError("malformed read_receipt payload")
			return
		}
		h.handleReadReceipt(ctx, cc, identity, payload.MessageID)

	default:
		cc.sendError("unsupported message type: " + env.Type)
	}
}

func (h *Handler) handleSendMessage(ctx context.Context, cc *channelConn, identity authservice.Identity, content string) {
	h.authSvc.Touch(identity.SessionID)

	msg, err := h.chatSvc.AppendUser(ctx, identity.UserID, content)
	if err != nil {
		if errors.Is(err, chatservice.ErrEmptyMessage) {
			cc.sendError("message content is empty")
			return
		}
		log.Printf("[channel] append failed: %v", err)
		cc.sendError("failed to store message")
		return
	}

	// Echo first with status sent, then confirm durable storage.
	if err := cc.send(protocol.EventMessage, protocol.MessagePayload{Message: msg}); err != nil {
		return
	}
	if _, applied, err := h.chatSvc.MarkDelivered(ctx, identity.UserID, msg.MessageID); err == nil && applied {
		cc.send(protocol.EventDeliveryReceipt, protocol.ReceiptPayload{MessageID: msg.MessageID})
	}

	go h.reply(ctx, cc, identity, msg)
}

func (h *Handler) handleReadReceipt(ctx context.Context, cc *channelConn, identity authservice.Identity, messageID string) {
	h.authSvc.Touch(identity.SessionID)

	// Unknown ids are tolerated silently; nothing is echoed back.
	if _, applied, err := h.chatSvc.MarkRead(ctx, identity.UserID, messageID); err == nil && applied {
		cc.send(protocol.EventReadReceipt, protocol.ReceiptPayload{MessageID: messageID})
	}
}

// reply produces the companion's answer to userMsg and streams the typing
// indicator, read receipt and final message back over the channel.
func (h *Handler) reply(ctx context.Context, cc *channelConn, identity authservice.Identity, userMsg protocol.Message) {
	cc.send(protocol.EventTyping, protocol.TypingPayload{IsTyping: true})
	defer cc.send(protocol.EventTyping, protocol.TypingPayload{IsTyping: false})

	_, history, err := h.chatSvc.History(ctx, identity.UserID)
	if err != nil {
		log.Printf("[channel] history load failed: %v", err)
		cc.sendError("companion unavailable")
		return
	}

	replyText, err := h.responder.Reply(ctx, history, userMsg.Content)
	if err != nil {
		log.Printf("[channel] responder failed: %v", err)
		cc.sendError("companion unavailable")
		return
	}

	state := h.emotions.Classify(ctx, history, userMsg.Content, replyText)

	assistantMsg, err := h.chatSvc.AppendAssistant(ctx, identity.UserID, replyText, &state)
	if err != nil {
		log.Printf("[channel] append assistant failed: %v", err)
		cc.sendError("failed to store companion reply")
		return
	}

	// The companion has read what it is replying to.
	if _, applied, err := h.chatSvc.MarkRead(ctx, identity.UserID, userMsg.MessageID); err == nil && applied {
		cc.send(protocol.EventReadReceipt, protocol.ReceiptPayload{MessageID: userMsg.MessageID})
	}

	cc.send(protocol.EventMessage, protocol.MessagePayload{Message: assistantMsg})
}
