package realtime

import (
	"sync"

	"github.com/rs/zerolog"
)

const sendBuffer = 64

// Client is one websocket connection and the topics it listens to.
type Client struct {
	ID     string
	send   chan []byte
	topics map[string]struct{}
}

func NewClient(id string, topics ...string) *Client {
	c := &Client{
		ID:     id,
		send:   make(chan []byte, sendBuffer),
		topics: make(map[string]struct{}, len(topics)),
	}
	for _, t := range topics {
		c.topics[t] = struct{}{}
	}
	return c
}

// Messages is closed once the client is unregistered.
func (c *Client) Messages() <-chan []byte {
	return c.send
}

// Hub tracks connected clients by topic. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	byTopic map[string]map[*Client]struct{}
	clients map[*Client]struct{}
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		byTopic: make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
		log:     log.With().Str("component", "realtime_hub").Logger(),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	for topic := range c.topics {
		h.addLocked(c, topic)
	}
}

// Unregister drops c from every topic and closes its message channel.
// Unregistering twice is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	for topic := range c.topics {
		h.removeLocked(c, topic)
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) Subscribe(c *Client, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, topic := range topics {
		c.topics[topic] = struct{}{}
		h.addLocked(c, topic)
	}
}

func (h *Hub) Unsubscribe(c *Client, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		delete(c.topics, topic)
		h.removeLocked(c, topic)
	}
}

// Handle applies a subscribe or unsubscribe request. Other actions are ignored.
func (h *Hub) Handle(c *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(c, msg.Topics...)
	case "unsubscribe":
		h.Unsubscribe(c, msg.Topics...)
	}
}

// Broadcast queues data for every subscriber of topic. A client whose buffer
// is full misses the message rather than stalling the others.
func (h *Hub) Broadcast(topic string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.byTopic[topic] {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Str("client_id", c.ID).Str("topic", topic).Msg("client buffer full, dropping message")
		}
	}
}

// Relay validates a change payload and broadcasts it to patients subscribers.
func (h *Hub) Relay(payload []byte) {
	ev, err := DecodeChange(payload)
	if err != nil {
		h.log.Warn().Err(err).Msg("ignoring malformed change")
		return
	}
	h.log.Debug().Str("type", ev.Type).Msg("relaying change")
	h.Broadcast(TopicPatients, payload)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTopic[topic])
}

func (h *Hub) addLocked(c *Client, topic string) {
	subs := h.byTopic[topic]
	if subs == nil {
		subs = make(map[*Client]struct{})
		h.byTopic[topic] = subs
	}
	subs[c] = struct{}{}
}

func (h *Hub) removeLocked(c *Client, topic string) {
	subs, ok := h.byTopic[topic]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.byTopic, topic)
	}
}
