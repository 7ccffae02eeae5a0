package stream

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/internal/metrics"
	"github.com/fableloom/chronicler/internal/pool"
	"github.com/fableloom/chronicler/types"
)

const defaultSendBuffer = 16

// Subscriber is one delivery channel. Frames() yields JSON-encoded
// TurnBriefs; the channel is closed when the subscriber is dropped for
// falling behind or when the hub shuts down.
type Subscriber struct {
	id      uint64
	agentID string
	ch      chan []byte
	hub     *Hub
	once    sync.Once
}

// Frames returns the subscriber's frame channel.
func (s *Subscriber) Frames() <-chan []byte { return s.ch }

// AgentID returns the agent filter, empty for a firehose subscription.
func (s *Subscriber) AgentID() string { return s.agentID }

// Close unsubscribes. Safe to call more than once and safe to race
// with a hub-side drop.
func (s *Subscriber) Close() {
	s.hub.unsubscribe(s.id)
}

// Hub fans emitted briefs out to subscribers.
type Hub struct {
	sendBuffer int
	collector  *metrics.Collector
	logger     *zap.Logger

	mu     sync.Mutex
	subs   map[uint64]*Subscriber
	nextID uint64
	closed bool
}

// NewHub creates a hub with the configured per-subscriber buffer.
func NewHub(cfg config.StreamConfig, collector *metrics.Collector, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Hub{
		sendBuffer: buffer,
		collector:  collector,
		logger:     logger.With(zap.String("component", "stream_hub")),
		subs:       make(map[uint64]*Subscriber),
	}
}

// Subscribe registers a delivery channel. An empty agentID subscribes
// to every agent's briefs.
func (h *Hub) Subscribe(agentID string) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, types.NewError(types.ErrServiceUnavailable, "stream hub is shut down")
	}
	h.nextID++
	sub := &Subscriber{
		id:      h.nextID,
		agentID: agentID,
		ch:      make(chan []byte, h.sendBuffer),
		hub:     h,
	}
	h.subs[sub.id] = sub
	h.setSubscriberGauge()
	h.logger.Debug("subscriber joined",
		zap.Uint64("subscriber_id", sub.id),
		zap.String("agent_id", agentID))
	return sub, nil
}

// Publish broadcasts one brief. A subscriber whose buffer is full is
// dropped on the spot; delivery to the others continues.
func (h *Hub) Publish(brief types.TurnBrief) {
	frame, err := encodeFrame(brief)
	if err != nil {
		h.logger.Error("brief frame encoding failed",
			zap.String("agent_id", brief.AgentID), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		if sub.agentID != "" && sub.agentID != brief.AgentID {
			continue
		}
		select {
		case sub.ch <- frame:
			if h.collector != nil {
				h.collector.RecordStreamFrame()
			}
		default:
			// 慢订阅者：当场整个丢弃，不替它攒帧。
			delete(h.subs, id)
			sub.once.Do(func() { close(sub.ch) })
			if h.collector != nil {
				h.collector.RecordStreamDropped()
			}
			h.logger.Warn("dropping slow subscriber",
				zap.Uint64("subscriber_id", id),
				zap.String("agent_id", sub.agentID))
		}
	}
	h.setSubscriberGauge()
}

// Subscribers reports the live subscription count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
	h.setSubscriberGauge()
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	sub.once.Do(func() { close(sub.ch) })
	h.setSubscriberGauge()
}

// setSubscriberGauge must be called with the lock held.
func (h *Hub) setSubscriberGauge() {
	if h.collector != nil {
		h.collector.SetStreamSubscribers(len(h.subs))
	}
}

// encodeFrame renders one brief through a pooled buffer. Frames are
// handed to subscriber channels, so the encoded bytes are copied out
// before the buffer goes back to the pool.
func encodeFrame(brief types.TurnBrief) ([]byte, error) {
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(brief); err != nil {
		return nil, err
	}
	frame := make([]byte, buf.Len())
	copy(frame, buf.Bytes())
	return frame, nil
}
