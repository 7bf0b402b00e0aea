package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/Ananth-NQI/orderline-backend/internal/events"
)

const DefaultHeartbeat = 25 * time.Second

// StreamHandler relays dashboard events to browsers over SSE
type StreamHandler struct {
	broadcaster *events.Broadcaster
	heartbeat   time.Duration
	logger      *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewStreamHandler creates a new SSE handler
func NewStreamHandler(broadcaster *events.Broadcaster, heartbeat time.Duration, log *slog.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{
		broadcaster: broadcaster,
		heartbeat:   heartbeat,
		logger:      log.With(slog.String("component", "sse")),
		done:        make(chan struct{}),
	}
}

// Close ends every open stream so the server can shut down.
func (h *StreamHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Stream holds the connection open and writes the merchant's events as they happen
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	merchantID := c.Params("merchantId")

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ch, cancel := h.broadcaster.Subscribe(merchantID, events.DefaultBuffer)
	log := h.logger.With(slog.String("merchant_id", merchantID))
	log.Info("sse client connected", slog.Int("clients", h.broadcaster.Count(merchantID)))

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer func() {
			cancel()
			log.Info("sse client disconnected", slog.Int("clients", h.broadcaster.Count(merchantID)))
		}()

		hello := map[string]any{"merchantId": merchantID, "at": time.Now()}
		if err := writeEvent(w, "connected", hello); err != nil {
			return
		}

		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-h.done:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := writeEvent(w, string(ev.Type), ev); err != nil {
					log.Debug("sse write failed", slog.Any("error", err))
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": heartbeat\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return w.Flush()
}

// TriggerEventRequest is a synthetic dashboard event
type TriggerEventRequest struct {
	Type string         `json:"type" validate:"required"`
	Data map[string]any `json:"data"`
}

// TriggerEvent publishes an event on behalf of another process
func (h *StreamHandler) TriggerEvent(c *fiber.Ctx) error {
	var req TriggerEventRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	merchantID := c.Params("merchantId")
	h.broadcaster.Publish(merchantID, events.EventType(req.Type), req.Data)
	h.logger.Info("event triggered", slog.String("merchant_id", merchantID), slog.String("type", req.Type))

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"clients": h.broadcaster.Count(merchantID),
	})
}
