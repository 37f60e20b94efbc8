package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/V4T54L/honeywatch/internal/domain"
)

// AlertSummary is the short form of a high-severity event pushed to dashboards.
type AlertSummary struct {
	SequenceID uint64             `json:"sequence_id"`
	Kind       string             `json:"event_type"`
	SourceIP   string             `json:"src_ip,omitempty"`
	Level      domain.ThreatLevel `json:"threat_level"`
	RiskScore  int                `json:"risk_score"`
}

// SSEMessage defines the structure of the message sent to the frontend.
type SSEMessage struct {
	Rate    float64        `json:"rate"`
	Events  int            `json:"events"`
	ByLevel map[string]int `json:"threat_levels"`
	Alerts  []AlertSummary `json:"alerts,omitempty"`
}

const maxAlertsPerMessage = 20

// SSEBroker manages SSE client connections and broadcasts the ingestion rate
// and recent alerts once per interval.
type SSEBroker struct {
	logger   *slog.Logger
	clients  map[chan []byte]struct{}
	mu       sync.RWMutex
	events   chan domain.EnrichedEvent
	interval time.Duration

	// owned by run
	count   int
	byLevel map[string]int
	alerts  []AlertSummary
	last    time.Time
}

// NewSSEBroker creates a new SSEBroker and starts its processing loop.
func NewSSEBroker(ctx context.Context, logger *slog.Logger, interval time.Duration) *SSEBroker {
	b := newSSEBroker(logger, interval)
	go b.run(ctx)
	return b
}

func newSSEBroker(logger *slog.Logger, interval time.Duration) *SSEBroker {
	if interval <= 0 {
		interval = time.Second
	}
	return &SSEBroker{
		logger:   logger.With("component", "sse_broker"),
		clients:  make(map[chan []byte]struct{}),
		events:   make(chan domain.EnrichedEvent, 1000),
		interval: interval,
		byLevel:  make(map[string]int),
		last:     time.Now(),
	}
}

// ServeHTTP handles new client connections for the SSE stream.
func (b *SSEBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	// the stream outlives the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	messageChan := make(chan []byte, 8)
	b.addClient(messageChan)
	defer b.removeClient(messageChan)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messageChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Record is called for every admitted event. It never blocks the ingest path.
func (b *SSEBroker) Record(ev domain.EnrichedEvent) {
	select {
	case b.events <- ev:
	default:
		b.logger.Warn("SSE event channel is full, dropping report")
	}
}

// Clients reports how many streams are connected.
func (b *SSEBroker) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *SSEBroker) addClient(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = struct{}{}
	b.logger.Info("SSE client connected")
}

func (b *SSEBroker) removeClient(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client)
		b.logger.Info("SSE client disconnected")
	}
}

func (b *SSEBroker) broadcast(msg []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client <- msg:
		default:
			// slow client, skip this tick
		}
	}
}

func (b *SSEBroker) observe(ev domain.EnrichedEvent) {
	b.count++
	b.byLevel[ev.Insight.Level.String()]++
	if ev.Insight.Level >= domain.LevelHigh && len(b.alerts) < maxAlertsPerMessage {
		b.alerts = append(b.alerts, AlertSummary{
			SequenceID: ev.SequenceID,
			Kind:       ev.Event.Kind,
			SourceIP:   ev.Event.SourceIP,
			Level:      ev.Insight.Level,
			RiskScore:  ev.Insight.RiskScore,
		})
	}
}

// tick builds the message for the interval ending at now and resets the counters.
func (b *SSEBroker) tick(now time.Time) SSEMessage {
	msg := SSEMessage{Events: b.count, ByLevel: b.byLevel, Alerts: b.alerts}
	if d := now.Sub(b.last).Seconds(); d > 0 {
		msg.Rate = float64(b.count) / d
	}
	b.count = 0
	b.byLevel = make(map[string]int)
	b.alerts = nil
	b.last = now
	return msg
}

// run is the main processing loop for the broker.
func (b *SSEBroker) run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			b.observe(ev)
		case now := <-ticker.C:
			jsonData, err := json.Marshal(b.tick(now))
			if err != nil {
				b.logger.Error("Failed to marshal SSE message", "error", err)
				continue
			}
			b.broadcast(jsonData)
		}
	}
}
