package line

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfman30/thsr-fare-bot/internal/conversation"
	"github.com/wolfman30/thsr-fare-bot/internal/observability/metrics"
	"github.com/wolfman30/thsr-fare-bot/pkg/logging"
)

const maxBodyBytes = 1 << 20

// Dispatcher runs inbound messages through the dialogue.
type Dispatcher interface {
	Dispatch(ctx context.Context, msgs []conversation.InboundMessage) []conversation.OutboundReply
	Forget(userID string)
}

// Replier delivers replies against a reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken string, texts []string) error
}

// Handler serves the LINE webhook.
type Handler struct {
	channelSecret string
	dispatcher    Dispatcher
	replier       Replier
	logger        *logging.Logger
	metrics       *metrics.DialogueMetrics
}

// NewHandler creates a webhook handler. m may be nil.
func NewHandler(channelSecret string, dispatcher Dispatcher, replier Replier, logger *logging.Logger, m *metrics.DialogueMetrics) *Handler {
	if dispatcher == nil {
		panic("line: dispatcher cannot be nil")
	}
	if replier == nil {
		panic("line: replier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		channelSecret: channelSecret,
		dispatcher:    dispatcher,
		replier:       replier,
		logger:        logger,
		metrics:       m,
	}
}

// Callback handles POST /callback.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if !VerifySignature(h.channelSecret, body, r.Header.Get("X-Line-Signature")) {
		h.logger.Warn("line: invalid webhook signature", "remote_ip", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var payload WebhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))

	messages, unfollowed := ParseEvents(payload)
	for _, userID := range unfollowed {
		h.dispatcher.Forget(userID)
		h.logger.Info("line: user unfollowed", "user_id", userID)
	}
	if len(messages) == 0 {
		return
	}

	ctx := r.Context()
	for _, batch := range groupReplies(h.dispatchEach(ctx, messages)) {
		texts := batch.texts
		if len(texts) > MaxReplyMessages {
			h.logger.Warn("line: truncating replies over the per-token limit",
				"count", len(texts),
				"limit", MaxReplyMessages,
			)
			texts = texts[:MaxReplyMessages]
		}
		if err := h.replier.Reply(ctx, batch.token, texts); err != nil {
			h.metrics.ObserveReply(metrics.ReplyFailed)
			h.logger.Error("line: reply failed", "error", err)
			continue
		}
		h.metrics.ObserveReply(metrics.ReplySent)
	}
}

// dispatchEach runs messages one at a time so a panic while handling one
// event does not lose the replies computed for the others.
func (h *Handler) dispatchEach(ctx context.Context, messages []conversation.InboundMessage) []conversation.OutboundReply {
	var out []conversation.OutboundReply
	for _, msg := range messages {
		out = append(out, h.dispatchOne(ctx, msg)...)
	}
	return out
}

func (h *Handler) dispatchOne(ctx context.Context, msg conversation.InboundMessage) (replies []conversation.OutboundReply) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("line: dialogue panicked; event dropped",
				"user_id", msg.UserID,
				"panic", fmt.Sprint(rec),
			)
			replies = nil
		}
	}()
	return h.dispatcher.Dispatch(ctx, []conversation.InboundMessage{msg})
}

type replyBatch struct {
	token string
	texts []string
}

// groupReplies collects texts per reply token, keeping the order in which
// tokens first appear and the order of texts within a token.
func groupReplies(replies []conversation.OutboundReply) []replyBatch {
	var batches []replyBatch
	index := make(map[string]int)
	for _, r := range replies {
		if r.ReplyToken == "" {
			continue
		}
		i, ok := index[r.ReplyToken]
		if !ok {
			i = len(batches)
			index[r.ReplyToken] = i
			batches = append(batches, replyBatch{token: r.ReplyToken})
		}
		batches[i].texts = append(batches[i].texts, r.Text)
	}
	return batches
}
