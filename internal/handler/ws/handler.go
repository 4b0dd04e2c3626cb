package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wavelink-backend/internal/domain"
	"wavelink-backend/internal/service/call"
	"wavelink-backend/internal/service/presence"
	"wavelink-backend/pkg/constants"
	"wavelink-backend/pkg/errors"
	"wavelink-backend/pkg/jwt"
	"wavelink-backend/pkg/logger"
	"wavelink-backend/pkg/metrics"
)

// ContactsStatusReply is the contacts_status payload
type ContactsStatusReply struct {
	Contacts []domain.ContactStatus `json:"contacts"`
}

// CallAck acknowledges a call action back to the connection that sent it
type CallAck struct {
	CallID   uuid.UUID `json:"call_id"`
	Status   string    `json:"status,omitempty"`
	RoomName string    `json:"room_name,omitempty"`
}

// Gateway accepts WebSocket connections, authenticates them, and dispatches
// inbound events to the realtime services
type Gateway struct {
	hub         *Hub
	verifier    *jwt.Verifier
	presenceSvc *presence.Service
	callSvc     *call.Service

	upgrader  websocket.Upgrader
	semaphore chan struct{}
}

// NewGateway creates a new WebSocket gateway with a hard connection cap
func NewGateway(hub *Hub, verifier *jwt.Verifier, presenceSvc *presence.Service, callSvc *call.Service, maxConnections int) *Gateway {
	return &Gateway{
		hub:         hub,
		verifier:    verifier,
		presenceSvc: presenceSvc,
		callSvc:     callSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		semaphore: make(chan struct{}, maxConnections),
	}
}

func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

// ServeWS handles GET /ws. The token travels as a query parameter because
// browser WebSocket clients cannot set headers.
func (g *Gateway) ServeWS(c *gin.Context) {
	select {
	case g.semaphore <- struct{}{}:
	default:
		metrics.WebSocketConnectionsRejectedTotal.WithLabelValues("capacity").Inc()
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Connection limit reached"})
		return
	}
	defer func() { <-g.semaphore }()

	claims, err := g.verifier.VerifyToken(extractToken(c))
	if err != nil {
		metrics.WebSocketConnectionsRejectedTotal.WithLabelValues("unauthorized").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid or missing token"})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		metrics.WebSocketConnectionsRejectedTotal.WithLabelValues("upgrade_failed").Inc()
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(g.hub, conn, claims.UserID, claims.Username)
	if replaced := g.hub.Register(client); replaced != nil {
		logger.Info("Replaced existing connection",
			zap.String("user_id", claims.UserID.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	if err := g.presenceSvc.Register(ctx, claims.UserID); err != nil {
		logger.Error("Failed to register presence",
			zap.String("user_id", claims.UserID.String()),
			zap.Error(err))
	}
	cancel()

	logger.Info("WebSocket connected",
		zap.String("user_id", claims.UserID.String()),
		zap.String("username", claims.Username))

	go client.writePump()
	client.readPump(g.dispatch)

	g.teardown(client)
}

// teardown runs after the read loop exits. Presence and calls are only
// touched when the departing connection was still the user's registered one:
// a connection replaced by a newer login must not flip the user offline or
// kill the new connection's call.
func (g *Gateway) teardown(client *Client) {
	wasCurrent := g.hub.Unregister(client)
	client.conn.Close()

	if !wasCurrent {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	g.callSvc.HandleDisconnect(ctx, client.userID)
	if err := g.presenceSvc.Unregister(ctx, client.userID); err != nil {
		logger.Error("Failed to unregister presence",
			zap.String("user_id", client.userID.String()),
			zap.Error(err))
	}

	logger.Info("WebSocket disconnected", zap.String("user_id", client.userID.String()))
}

func (g *Gateway) dispatch(client *Client, env *Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	var err error
	switch env.Event {
	case constants.EventHeartbeat:
		err = g.presenceSvc.Heartbeat(ctx, client.userID)

	case constants.EventGetContactsStatus:
		var statuses []domain.ContactStatus
		statuses, err = g.presenceSvc.ContactsStatus(ctx, client.userID)
		if err == nil {
			client.SendEvent(constants.EventContactsStatus, ContactsStatusReply{Contacts: statuses})
		}

	case constants.EventCallInitiate:
		err = g.handleCallInitiate(ctx, client, env.Data)

	case constants.EventCallAnswer:
		err = g.handleCallAnswer(ctx, client, env.Data)

	case constants.EventCallDecline:
		err = g.handleCallAction(ctx, client, env.Data, g.callSvc.Decline, constants.EventCallDeclineConfirmed)

	case constants.EventCallEnd:
		err = g.handleCallAction(ctx, client, env.Data, g.callSvc.End, constants.EventCallEndConfirmed)

	case constants.EventWebRTCOffer:
		err = g.handleSignal(ctx, client, env.Data, g.callSvc.RelayOffer)

	case constants.EventWebRTCAnswer:
		err = g.handleSignal(ctx, client, env.Data, g.callSvc.RelayAnswer)

	case constants.EventWebRTCICECandidate:
		err = g.handleSignal(ctx, client, env.Data, g.callSvc.RelayICECandidate)

	default:
		client.SendEvent(constants.EventError, ErrorPayload{Message: "unknown event: " + env.Event})
		metrics.WebSocketEventsTotal.WithLabelValues(env.Event, "unknown").Inc()
		return
	}

	if err != nil {
		g.replyError(client, env.Event, err)
		metrics.WebSocketEventsTotal.WithLabelValues(env.Event, "error").Inc()
		return
	}
	metrics.WebSocketEventsTotal.WithLabelValues(env.Event, "ok").Inc()
}

func (g *Gateway) handleCallInitiate(ctx context.Context, client *Client, data json.RawMessage) error {
	var payload CallInitiatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.ValidationError("malformed call_initiate payload")
	}

	session, err := g.callSvc.Initiate(ctx, client.userID, payload.CalleeID, domain.CallType(payload.CallType))
	if err != nil {
		return err
	}

	client.SendEvent(constants.EventCallInitiated, CallAck{
		CallID:   session.CallID,
		Status:   string(session.Status),
		RoomName: session.RoomName,
	})
	return nil
}

func (g *Gateway) handleCallAnswer(ctx context.Context, client *Client, data json.RawMessage) error {
	var payload CallActionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.ValidationError("malformed call_answer payload")
	}

	session, err := g.callSvc.Answer(ctx, client.userID, payload.CallID)
	if err != nil {
		return err
	}

	client.SendEvent(constants.EventCallAnswerConfirmed, CallAck{
		CallID:   session.CallID,
		Status:   string(session.Status),
		RoomName: session.RoomName,
	})
	return nil
}

func (g *Gateway) handleCallAction(
	ctx context.Context,
	client *Client,
	data json.RawMessage,
	action func(ctx context.Context, userID, callID uuid.UUID) error,
	ackEvent string,
) error {
	var payload CallActionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.ValidationError("malformed call action payload")
	}

	if err := action(ctx, client.userID, payload.CallID); err != nil {
		return err
	}

	client.SendEvent(ackEvent, CallAck{CallID: payload.CallID})
	return nil
}

func (g *Gateway) handleSignal(
	ctx context.Context,
	client *Client,
	data json.RawMessage,
	relay func(ctx context.Context, senderID, callID uuid.UUID, payload json.RawMessage) error,
) error {
	var payload SignalPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.ValidationError("malformed signal payload")
	}
	return relay(ctx, client.userID, payload.CallID, payload.Payload)
}

// replyError maps a failure back to the originating connection. Call events
// get the dedicated call_error event so clients can reset call UI state.
func (g *Gateway) replyError(client *Client, event string, err error) {
	appErr := errors.GetAppError(err)
	payload := ErrorPayload{Code: string(appErr.Code), Message: appErr.Message}

	if strings.HasPrefix(event, "call_") || strings.HasPrefix(event, "webrtc_") {
		metrics.CallErrorsTotal.WithLabelValues(string(appErr.Code)).Inc()
		client.SendEvent(constants.EventCallError, payload)
		return
	}
	client.SendEvent(constants.EventError, payload)
}
