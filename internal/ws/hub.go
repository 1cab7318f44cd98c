package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event is one message pushed to an outlet's terminals.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outletEvent struct {
	OutletID uuid.UUID
	Event    Event
}

// Hub fans events out to the terminals of each outlet. Every cashier screen
// and kitchen display subscribes to its own outlet's room; an order edit in
// one outlet never reaches another outlet's floor.
type Hub struct {
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *outletEvent

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *outletEvent, 256),
	}
}

// Run is the hub's main loop. Call it once as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.outletID] == nil {
				h.rooms[client.outletID] = make(map[*Client]bool)
			}
			h.rooms[client.outletID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.outletID]; ok {
				if _, exists := clients[client]; exists {
					h.dropClient(client)
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			for client := range h.rooms[event.OutletID] {
				select {
				case client.send <- message:
				default:
					// Send buffer full: the terminal stopped reading.
					h.dropClient(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// dropClient removes a client and tears down its room when empty.
// Caller holds h.mu.
func (h *Hub) dropClient(client *Client) {
	delete(h.rooms[client.outletID], client)
	close(client.send)
	if len(h.rooms[client.outletID]) == 0 {
		delete(h.rooms, client.outletID)
	}
}

// BroadcastToOutlet queues an event for every terminal in the outlet's room.
func (h *Hub) BroadcastToOutlet(outletID uuid.UUID, event Event) {
	h.broadcast <- &outletEvent{
		OutletID: outletID,
		Event:    event,
	}
}
