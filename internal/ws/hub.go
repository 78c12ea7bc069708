package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Hub fans out exam events to the websocket clients watching each exam
type Hub struct {
	clients    map[*Client]bool
	exams      map[string]map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		exams:      make(map[string]map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes hub events until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.broadcastToExam(event)
		}
	}
}

// join reports false once the hub has stopped
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if h.exams[client.examID] == nil {
		h.exams[client.examID] = make(map[*Client]bool)
	}
	h.exams[client.examID][client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(client)
}

// dropLocked must be called with h.mu held
func (h *Hub) dropLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	delete(h.exams[client.examID], client)
	if len(h.exams[client.examID]) == 0 {
		delete(h.exams, client.examID)
	}

	close(client.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.dropLocked(client)
	}
}

func (h *Hub) broadcastToExam(event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.exams[event.ExamID] {
		select {
		case client.send <- message:
		default:
			// slow consumer
			h.dropLocked(client)
		}
	}
}

// BroadcastToExam queues an event for every client watching examID. The
// event is dropped when the hub is saturated.
func (h *Hub) BroadcastToExam(examID string, eventType EventType, data interface{}) {
	event := Event{
		ExamID:    examID,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	select {
	case h.broadcast <- event:
	default:
	}
}

func (h *Hub) GetConnectedClients(examID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.exams[examID])
}
