package http

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/kisansahayak/agrimonitor/internal/adapters/nats"
	"github.com/kisansahayak/agrimonitor/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to feeds.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Field   string `json:"field"`   // field id filter (optional, "" = all)
	Channel string `json:"channel"` // "readings" | "assets" (default: readings)
}

// wsSubject maps a client request onto a NATS subject.
func wsSubject(m wsMessage) (string, string) {
	switch m.Channel {
	case "", "readings":
		if m.Field == "" {
			return natsadapter.SubjectReadings + ".>", ""
		}
		id, err := strconv.ParseInt(m.Field, 10, 64)
		if err != nil || id <= 0 {
			return "", "field must be a positive integer"
		}
		return natsadapter.ReadingSubject(id), ""
	case "assets":
		return natsadapter.SubjectAssetAttachFailed, ""
	default:
		return "", "unknown channel: " + m.Channel
	}
}

// WebSocketHandler relays reading events from NATS to connected clients.
// Clients send JSON: {"action":"subscribe","field":"12","channel":"readings"}
// An empty field means all fields. Nothing is relayed until the client
// subscribes.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		slog.Debug("ws client connected", "remote", remoteAddr)

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		if nc == nil {
			_ = writeJSON(map[string]string{"error": "event stream unavailable"})
			return
		}

		subs := make(map[string]*nats.Subscription)
		defer func() {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			slog.Debug("ws client disconnected", "remote", remoteAddr)
		}()

		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			subject, problem := wsSubject(m)
			if problem != "" {
				_ = writeJSON(map[string]string{"error": problem})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				s, err := nc.Subscribe(subject, func(msg *nats.Msg) {
					_ = writeJSON(json.RawMessage(msg.Data))
				})
				if err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[subject] = s
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}
	}
}
