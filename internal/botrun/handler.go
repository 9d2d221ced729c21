// Package botrun wires the engagement engine, answer generation, and the
// Matrix transport into the per-event handling pipeline.
package botrun

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aosus/askaosus/engage"
	"github.com/aosus/askaosus/internal/markdown"
	"github.com/aosus/askaosus/internal/retryutil"
)

// Transport is the subset of the Matrix client the handler needs.
type Transport interface {
	SendMessage(ctx context.Context, roomID, body, formattedBody, replyToID string) (string, error)
	Typing(ctx context.Context, roomID string, typing bool, timeout time.Duration) error
}

// Answerer produces the reply text for an assembled question context.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Recorder persists sent event ids across restarts.
type Recorder interface {
	Record(ctx context.Context, roomID, eventID string) error
}

type Handler struct {
	botID     string
	transport Transport
	engine    *engage.Engine
	answerer  Answerer
	gate      *engage.Gate
	registry  *engage.SentRegistry
	store     Recorder
	logger    *slog.Logger

	typingTimeout time.Duration
}

type Options struct {
	BotID     string
	Transport Transport
	Engine    *engage.Engine
	Answerer  Answerer
	Gate      *engage.Gate
	Registry  *engage.SentRegistry
	Store     Recorder // optional
	Logger    *slog.Logger

	TypingTimeout time.Duration
}

func New(opts Options) (*Handler, error) {
	if opts.BotID == "" {
		return nil, fmt.Errorf("bot id is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if opts.Answerer == nil {
		return nil, fmt.Errorf("answerer is required")
	}
	if opts.Gate == nil {
		return nil, fmt.Errorf("gate is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	typingTimeout := opts.TypingTimeout
	if typingTimeout <= 0 {
		typingTimeout = 30 * time.Second
	}
	return &Handler{
		botID:         opts.BotID,
		transport:     opts.Transport,
		engine:        opts.Engine,
		answerer:      opts.Answerer,
		gate:          opts.Gate,
		registry:      opts.Registry,
		store:         opts.Store,
		logger:        logger,
		typingTimeout: typingTimeout,
	}, nil
}

// HandleEvent processes one timeline message. It never returns an error and
// never panics outward: a faulty message is logged and dropped, the sync
// loop keeps running.
func (h *Handler) HandleEvent(ctx context.Context, msg engage.Message) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("handler_panic", "event_id", msg.ID, "room_id", msg.RoomID, "panic", fmt.Sprintf("%v", r))
		}
	}()

	if msg.Sender == h.botID {
		return
	}
	if !h.gate.Admit(msg.RoomID, msg.Timestamp) {
		h.logger.Debug("message_gated", "event_id", msg.ID, "room_id", msg.RoomID)
		return
	}

	decision := h.engine.Decide(ctx, msg)
	if !decision.Respond {
		h.logger.Debug("message_ignored", "event_id", msg.ID, "reason", decision.Reason)
		return
	}
	h.logger.Info("question_accepted", "event_id", msg.ID, "room_id", msg.RoomID, "reason", decision.Reason)
	h.gate.MarkHandled(msg.RoomID)

	if err := h.transport.Typing(ctx, msg.RoomID, true, h.typingTimeout); err != nil {
		h.logger.Warn("typing_start_error", "room_id", msg.RoomID, "error", err.Error())
	}
	defer h.stopTyping(ctx, msg.RoomID)

	answer, err := h.answerer.Answer(ctx, decision.Context)
	if err != nil {
		// The answerer already substituted a localized apology.
		h.logger.Error("answer_error", "event_id", msg.ID, "error", err.Error())
	}

	eventID, err := h.transport.SendMessage(ctx, msg.RoomID, answer, markdown.ToMatrixHTML(answer), decision.ReplyTo)
	if err != nil {
		h.logger.Error("matrix_send_error", "room_id", msg.RoomID, "error", err.Error())
		return
	}
	h.logger.Info("answer_sent", "room_id", msg.RoomID, "event_id", eventID)

	h.registry.Add(eventID)
	if h.store != nil {
		if err := h.store.Record(ctx, msg.RoomID, eventID); err != nil {
			h.logger.Warn("sent_store_error", "event_id", eventID, "error", err.Error())
		}
	}
}

// stopTyping clears the indicator, retrying once in the background when the
// first attempt fails.
func (h *Handler) stopTyping(ctx context.Context, roomID string) {
	if err := h.transport.Typing(ctx, roomID, false, 0); err != nil {
		h.logger.Warn("typing_stop_error", "room_id", roomID, "error", err.Error())
		retryutil.AsyncRetry(h.logger, "typing_stop", 0, 0, func(ctx context.Context) error {
			return h.transport.Typing(ctx, roomID, false, 0)
		})
	}
}
