package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wavelink-backend/pkg/logger"
	"wavelink-backend/pkg/metrics"
)

// Hub is the connection registry: it maps each user to their single live
// connection and tracks topic subscriptions. Fan-out goes through Redis
// Pub/Sub so that every process holding subscribers for a topic delivers to
// its own local connections.
type Hub struct {
	redisClient *redis.Client

	mu sync.RWMutex
	// connections is the registry proper: one entry per user, last writer wins
	connections map[uuid.UUID]*Client
	// topics maps topic name to the local clients subscribed to it
	topics map[string]map[*Client]bool
	// subscriptionCancels stops the Redis subscription when a topic empties
	subscriptionCancels map[string]context.CancelFunc
}

// UserTopic is the broadcast topic scoped to one user's personal events
func UserTopic(userID uuid.UUID) string {
	return fmt.Sprintf("user_%s", userID)
}

// CallTopic is the broadcast topic scoped to one call
func CallTopic(callID uuid.UUID) string {
	return fmt.Sprintf("call_%s", callID)
}

// NewHub creates a new hub
func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		redisClient:         redisClient,
		connections:         make(map[uuid.UUID]*Client),
		topics:              make(map[string]map[*Client]bool),
		subscriptionCancels: make(map[string]context.CancelFunc),
	}
}

// Register stores the client in the registry, replacing any prior connection
// for the same user (last writer wins), and joins the user's personal topic.
// The replaced client, if any, is returned so the caller can close it.
func (h *Hub) Register(client *Client) *Client {
	h.mu.Lock()

	replaced := h.connections[client.userID]
	if replaced != nil {
		h.removeClientLocked(replaced)
	}
	h.connections[client.userID] = client
	h.joinTopicLocked(client, UserTopic(client.userID))

	total := len(h.connections)
	h.mu.Unlock()

	metrics.WebSocketConnectionsActive.Set(float64(total))
	return replaced
}

// Unregister removes the client from the registry and all topics. A client
// that was already replaced by a newer connection for the same user leaves
// the newer registration untouched. Unknown clients are a silent no-op.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()

	current, ok := h.connections[client.userID]
	if !ok || current != client {
		h.removeClientLocked(client)
		h.mu.Unlock()
		return false
	}

	delete(h.connections, client.userID)
	h.removeClientLocked(client)

	total := len(h.connections)
	h.mu.Unlock()

	metrics.WebSocketConnectionsActive.Set(float64(total))
	return true
}

// IsRegistered reports whether the user has a live connection in this process
func (h *Hub) IsRegistered(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.connections[userID]
	return ok
}

// RegisteredUserIDs snapshots the users currently registered
func (h *Hub) RegisteredUserIDs() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	return ids
}

// JoinTopic subscribes the user's live connection to a topic. A user without
// a live connection is a no-op.
func (h *Hub) JoinTopic(userID uuid.UUID, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.connections[userID]
	if !ok {
		return
	}
	h.joinTopicLocked(client, topic)
}

// DropTopic unsubscribes every local member and cancels the Redis
// subscription. Used when a call is torn down.
func (h *Hub) DropTopic(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.topics[topic] {
		delete(client.topics, topic)
	}
	delete(h.topics, topic)
	h.cancelSubscriptionLocked(topic)
}

// PublishToUser sends an event to a user's personal topic
func (h *Hub) PublishToUser(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	return h.Publish(ctx, UserTopic(userID), event, data)
}

// PublishToCall sends an event to every participant subscribed to a call
func (h *Hub) PublishToCall(ctx context.Context, callID uuid.UUID, event string, data interface{}) error {
	return h.Publish(ctx, CallTopic(callID), event, data)
}

// JoinCallTopic subscribes a participant's live connection to a call's topic
func (h *Hub) JoinCallTopic(userID uuid.UUID, callID uuid.UUID) {
	h.JoinTopic(userID, CallTopic(callID))
}

// DropCallTopic tears down a call's topic after the call reaches a terminal
// state
func (h *Hub) DropCallTopic(callID uuid.UUID) {
	h.DropTopic(CallTopic(callID))
}

// Publish encodes the event and pushes it through Redis Pub/Sub. Delivery to
// local connections happens in the per-topic subscription loop.
func (h *Hub) Publish(ctx context.Context, topic string, event string, data interface{}) error {
	payload, err := Encode(event, data)
	if err != nil {
		return err
	}

	if err := h.redisClient.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// joinTopicLocked adds the client to a topic, starting the topic's Redis
// subscription when it gains its first local member. Callers hold h.mu.
func (h *Hub) joinTopicLocked(client *Client, topic string) {
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]bool)

		ctx, cancel := context.WithCancel(context.Background())
		h.subscriptionCancels[topic] = cancel
		go h.subscribeToTopic(ctx, topic)
	}
	h.topics[topic][client] = true
	client.topics[topic] = true
}

// removeClientLocked detaches the client from all its topics and closes its
// send channel. Callers hold h.mu.
func (h *Hub) removeClientLocked(client *Client) {
	for topic := range client.topics {
		if members, ok := h.topics[topic]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.topics, topic)
				h.cancelSubscriptionLocked(topic)
			}
		}
	}
	client.topics = make(map[string]bool)
	client.closeSend()
}

func (h *Hub) cancelSubscriptionLocked(topic string) {
	if cancel, ok := h.subscriptionCancels[topic]; ok {
		cancel()
		delete(h.subscriptionCancels, topic)
	}
}

// subscribeToTopic pumps the topic's Redis Pub/Sub channel into the local
// subscribers until the topic empties
func (h *Hub) subscribeToTopic(ctx context.Context, topic string) {
	pubsub := h.redisClient.Subscribe(ctx, topic)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		logger.Error("Failed to subscribe to topic",
			zap.String("topic", topic),
			zap.Error(err))
		return
	}

	metrics.TopicSubscriptionsActive.Inc()
	defer metrics.TopicSubscriptionsActive.Dec()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			if msg == nil {
				continue
			}
			h.deliver(topic, []byte(msg.Payload))
		}
	}
}

// deliver fans a raw payload out to the topic's local subscribers. Slow
// consumers are closed rather than blocking the loop; the regular
// disconnect path then unregisters them and cleans up presence and calls.
func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	var stalled []*Client
	for client := range h.topics[topic] {
		select {
		case client.send <- payload:
		default:
			stalled = append(stalled, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stalled {
		logger.Warn("Closing stalled realtime connection",
			zap.String("user_id", client.userID.String()),
			zap.String("topic", topic))
		client.closeSend()
	}
}
