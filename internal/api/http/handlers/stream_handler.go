package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/api/dto"
	"github.com/spec-kit/support-tickets/internal/service"
)

const defaultPingInterval = 15 * time.Second

// StreamHandler serves ticket threads as server-sent events.
type StreamHandler struct {
	tickets *service.TicketService
	ping    time.Duration
	logger  *zap.Logger
}

// NewStreamHandler constructs handler. ping is the keep-alive interval.
func NewStreamHandler(ticketService *service.TicketService, ping time.Duration, logger *zap.Logger) *StreamHandler {
	if ping <= 0 {
		ping = defaultPingInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{tickets: ticketService, ping: ping, logger: logger}
}

// Stream GET /tickets/:id/stream.
//
// A client resuming after a drop sends Last-Event-ID (or after_seq); the
// messages it missed are replayed before live ones. Event ids are message
// sequence numbers.
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	actor, err := requestActor(c)
	if err != nil {
		return err
	}
	resume := c.Get("Last-Event-ID")
	if resume == "" {
		resume = c.Query("after_seq")
	}
	afterSeq, err := parseSeq(resume)
	if err != nil {
		return err
	}
	ticketID := c.Params("id")

	// The body is written after the handler returns, so the subscription
	// cannot hang off the request context.
	streamCtx, cancel := context.WithCancel(context.Background())
	sub, err := h.tickets.Subscribe(streamCtx, actor, ticketID)
	if err != nil {
		cancel()
		return err
	}
	var backlog []dto.TicketMessageResponse
	if afterSeq > 0 {
		msgs, err := h.tickets.ListMessages(c.UserContext(), actor, ticketID, afterSeq)
		if err != nil {
			sub.Close()
			cancel()
			return err
		}
		backlog = dto.NewMessageList(msgs)
	}

	setSSEHeaders(c)
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer sub.Close()

		lastSeq := afterSeq
		sseWrite(w, "ready", "", fiber.Map{"ticket_id": ticketID, "after_seq": afterSeq})
		for _, msg := range backlog {
			sseWrite(w, "message", strconv.FormatInt(msg.Seq, 10), msg)
			lastSeq = msg.Seq
		}
		if err := w.Flush(); err != nil {
			return
		}

		ticker := time.NewTicker(h.ping)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-sub.C():
				if !ok {
					reason := "closed"
					if err := sub.Err(); err != nil {
						reason = err.Error()
					}
					sseWrite(w, "end", "", fiber.Map{"reason": reason})
					_ = w.Flush()
					return
				}
				if msg.Seq <= lastSeq {
					continue
				}
				lastSeq = msg.Seq
				sseWrite(w, "message", strconv.FormatInt(msg.Seq, 10), dto.NewMessageResponse(&msg))
			case t := <-ticker.C:
				sseWrite(w, "ping", "", t.UTC().Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				h.logger.Debug("stream client gone",
					zap.String("ticket_id", ticketID),
					zap.String("actor_id", actor.ID),
				)
				return
			}
		}
	}))
	return nil
}

func setSSEHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
}

func sseWrite(w io.Writer, event, id string, data any) {
	payload := marshalPayload(data)
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	if id != "" {
		_, _ = fmt.Fprintf(w, "id: %s\n", id)
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func marshalPayload(data any) string {
	switch payload := data.(type) {
	case string:
		return payload
	case []byte:
		return string(payload)
	default:
		bytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("%v", data)
		}
		return string(bytes)
	}
}
