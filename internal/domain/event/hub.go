package event

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Connection represents one WebSocket subscriber
type Connection struct {
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub fans Redis-published events out to the WebSocket connections held by
// this API instance. Each instance runs its own hub; Redis Pub/Sub carries
// events between instances.
type Hub struct {
	connections map[uuid.UUID]map[*Connection]bool

	redis  *redis.Client
	pubsub *redis.PubSub

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates an event hub subscribed to every per-user channel.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
	}

	if redisClient != nil {
		h.pubsub = redisClient.PSubscribe(ctx, userChannelPrefix+"*")
	}

	return h
}

// Run processes registrations and inbound pub/sub messages until Stop.
func (h *Hub) Run() {
	var messages <-chan *redis.Message
	if h.pubsub != nil {
		messages = h.pubsub.Channel()
	}

	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.UserID] == nil {
				h.connections[conn.UserID] = make(map[*Connection]bool)
			}
			h.connections[conn.UserID][conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.connections[conn.UserID]; ok {
				if conns[conn] {
					delete(conns, conn)
					close(conn.Send)
					if len(conns) == 0 {
						delete(h.connections, conn.UserID)
					}
				}
			}
			h.mu.Unlock()

		case msg, ok := <-messages:
			if !ok {
				return
			}
			h.deliver(msg.Channel, []byte(msg.Payload))

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop shuts the hub down and closes the pub/sub subscription.
func (h *Hub) Stop() {
	h.cancel()
	if h.pubsub != nil {
		if err := h.pubsub.Close(); err != nil {
			log.Error().Err(err).Msg("event hub pubsub close failed")
		}
	}
}

func (h *Hub) deliver(channel string, payload []byte) {
	idStr := strings.TrimPrefix(channel, userChannelPrefix)
	userID, err := uuid.Parse(idStr)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.connections[userID] {
		select {
		case conn.Send <- payload:
		default:
			// Slow consumer; drop rather than block the hub.
			log.Warn().Str("user_id", idStr).Msg("event dropped for slow websocket consumer")
		}
	}
}
