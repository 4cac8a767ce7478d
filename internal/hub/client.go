package hub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dealbridge/chat-service/internal/config"
	"github.com/dealbridge/chat-service/internal/domain"
	"github.com/dealbridge/chat-service/pkg/log"
)

// Client is one websocket connection, bound to the viewer identity the
// gateway attached to the upgrade request.
type Client struct {
	ID            string
	ParticipantID string
	Viewer        domain.Viewer
	Hub           *Hub
	Conn          *websocket.Conn
	Send          chan []byte
	// OnClose runs once when the connection goes away, before the client
	// unregisters. The handler uses it to release push subscriptions.
	OnClose func()
	config  config.WebSocketConfig
}

func NewClient(id string, viewer domain.Viewer, h *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		ID:            id,
		ParticipantID: viewer.ID,
		Viewer:        viewer,
		Hub:           h,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		config:        cfg,
	}
}

func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		if c.OnClose != nil {
			c.OnClose()
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.L().Warn().Err(err).Str("client_id", c.ID).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage marshals the message onto the connection's send buffer. A full
// buffer drops the message; snapshot pushes are re-derivable, so dropping
// beats blocking the hub.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
	default:
	}
	return nil
}
