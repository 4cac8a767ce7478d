package hub

import (
	"encoding/json"
	"sync"

	"github.com/dealbridge/chat-service/internal/config"
	"github.com/dealbridge/chat-service/pkg/log"
)

// Hub tracks connected websocket clients, grouped by participant so one
// person's open tabs all receive the same pushes.
type Hub struct {
	clients      map[string]*Client            // clientID -> client
	participants map[string]map[string]*Client // participantID -> clientID -> client
	register     chan *Client
	unregister   chan *Client
	broadcast    chan *ParticipantMessage
	mu           sync.RWMutex
	config       config.WebSocketConfig
}

// ParticipantMessage is a payload fanned out to every connection of one
// participant.
type ParticipantMessage struct {
	ParticipantID string
	Message       []byte
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		participants: make(map[string]map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan *ParticipantMessage, 256),
		config:       cfg,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if _, ok := h.participants[client.ParticipantID]; !ok {
				h.participants[client.ParticipantID] = make(map[string]*Client)
			}
			h.participants[client.ParticipantID][client.ID] = client
			h.mu.Unlock()
			log.L().Debug().
				Str("client_id", client.ID).
				Str(log.FieldUserID, client.ParticipantID).
				Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				if peers, ok := h.participants[client.ParticipantID]; ok {
					delete(peers, client.ID)
					if len(peers) == 0 {
						delete(h.participants, client.ParticipantID)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			log.L().Debug().
				Str("client_id", client.ID).
				Str(log.FieldUserID, client.ParticipantID).
				Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.participants[msg.ParticipantID] {
				select {
				case client.Send <- msg.Message:
				default:
					go h.removeClient(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToParticipant sends the message to every connection the
// participant has open.
func (h *Hub) BroadcastToParticipant(participantID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &ParticipantMessage{
		ParticipantID: participantID,
		Message:       data,
	}
	return nil
}

// ParticipantConnectionCount returns how many connections a participant has
// open.
func (h *Hub) ParticipantConnectionCount(participantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.participants[participantID])
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
