package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sensorhub-io/hub/bus"
)

// streamUpgrader grounds the stream=true live surface in
// github.com/gorilla/websocket, the pack's only websocket library (newly
// wired from cartographus per SPEC_FULL.md §4.8).
var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamInitialDemand is the fixed credit a live subscription is given at
// upgrade time and re-requests after every forwarded frame (spec §4.8:
// "subscribe to the associated bus topic; serialize each event"), keeping
// exactly one unit of outstanding demand for the lifetime of the
// connection — the same self-replenishing pattern bridge.Bridge uses for
// its own always-on internal subscription.
const streamInitialDemand = 1

// pumpTopic upgrades the connection to a websocket and forwards every event
// published on topic as a JSON text frame until the client disconnects or
// the request's context is cancelled.
func pumpTopic(w http.ResponseWriter, r *http.Request, b *bus.Bus, topic string, logger *slog.Logger) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err, "topic", topic)
		return
	}
	defer conn.Close()

	var sub *bus.Subscription
	sub = b.Subscribe(topic, nil, func(evt bus.Event) {
		data, err := json.Marshal(evt.Payload)
		if err != nil {
			logger.Warn("failed to marshal stream event", "error", err, "topic", topic)
			sub.Request(streamInitialDemand)
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
		sub.Request(streamInitialDemand)
	})
	sub.Request(streamInitialDemand)
	defer sub.Cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-r.Context().Done():
	}
}
