package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/thsr-fare-bot/internal/observability/metrics"
	"github.com/wolfman30/thsr-fare-bot/internal/tdx"
	"github.com/wolfman30/thsr-fare-bot/pkg/logging"
)

// Directory resolves stations and fares.
type Directory interface {
	ResolveStation(ctx context.Context, input string) (*tdx.Station, error)
	GetFare(ctx context.Context, q tdx.FareQuery) (int, error)
}

// StateStore holds per-user dialogue state. Update must serialize calls for
// the same user.
type StateStore interface {
	Update(userID string, fn func(*State))
	Reset(userID string)
	ResetAll()
}

// CompletionReset selects whose state is cleared when a fare query completes.
type CompletionReset int

const (
	// ResetCompletingUser clears only the user who finished the query.
	ResetCompletingUser CompletionReset = iota
	// ResetEveryUser clears all users, matching the first release of the bot.
	ResetEveryUser
)

// InboundMessage is a decoded text event from the messaging platform.
type InboundMessage struct {
	UserID     string
	Text       string
	ReplyToken string
}

// OutboundReply is one text to deliver against a reply token.
type OutboundReply struct {
	ReplyToken string
	Text       string
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithMetrics records dialogue and lookup metrics.
func WithMetrics(m *metrics.DialogueMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithCompletionReset sets the reset scope applied after a fare result.
func WithCompletionReset(scope CompletionReset) EngineOption {
	return func(e *Engine) {
		e.completionReset = scope
	}
}

// Engine runs the fare-query dialogue.
type Engine struct {
	directory       Directory
	store           StateStore
	logger          *logging.Logger
	metrics         *metrics.DialogueMetrics
	completionReset CompletionReset
}

// NewEngine creates a dialogue engine.
func NewEngine(directory Directory, store StateStore, logger *logging.Logger, opts ...EngineOption) *Engine {
	if directory == nil {
		panic("conversation: directory cannot be nil")
	}
	if store == nil {
		panic("conversation: state store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		directory: directory,
		store:     store,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type turn struct {
	replies   []string
	completed bool
}

func reply(text string) turn {
	return turn{replies: []string{text}}
}

// HandleMessage advances userID's dialogue with one text message and
// returns the replies to send, in order. Lookup failures become retry
// prompts; they are never returned as errors.
func (e *Engine) HandleMessage(ctx context.Context, userID, text string) []string {
	if userID == "" {
		e.logger.Warn("conversation: dropping message without user id")
		return nil
	}

	var t turn
	e.store.Update(userID, func(st *State) {
		from := st.Phase
		e.metrics.ObserveMessage(from.String())

		t = e.step(ctx, userID, st, text)

		if st.Phase != from {
			e.metrics.ObserveTransition(from.String(), st.Phase.String())
			e.logger.Debug("conversation: phase changed",
				"user_id", userID,
				"from", from.String(),
				"to", st.Phase.String(),
			)
		}
	})

	if t.completed && e.completionReset == ResetEveryUser {
		e.store.ResetAll()
		e.logger.Info("conversation: cleared all dialogues after completed query", "user_id", userID)
	}
	return t.replies
}

// Dispatch handles a batch of inbound messages in order and pairs every
// reply with the reply token of the message that produced it.
func (e *Engine) Dispatch(ctx context.Context, msgs []InboundMessage) []OutboundReply {
	var out []OutboundReply
	for _, msg := range msgs {
		for _, text := range e.HandleMessage(ctx, msg.UserID, msg.Text) {
			out = append(out, OutboundReply{ReplyToken: msg.ReplyToken, Text: text})
		}
	}
	return out
}

// Forget drops a user's dialogue, e.g. after they block the bot.
func (e *Engine) Forget(userID string) {
	e.store.Reset(userID)
}

func (e *Engine) step(ctx context.Context, userID string, st *State, text string) turn {
	switch st.Phase {
	case PhaseIdle:
		return e.handleIdle(st, text)
	case PhaseChooseQueryType:
		return e.handleChooseQueryType(st, text)
	case PhaseCollectOrigin:
		return e.handleCollectOrigin(ctx, userID, st, text)
	case PhaseCollectDestination:
		return e.handleCollectDestination(ctx, userID, st, text)
	case PhaseCollectCabin:
		return e.handleCollectCabin(ctx, userID, st, text)
	default:
		panic(&InvariantError{UserID: userID, Phase: st.Phase, Field: "Phase"})
	}
}

func (e *Engine) handleIdle(st *State, text string) turn {
	if containsAny(text, "查詢", "高鐵") || containsAnyFold(text, "query", "thsr") {
		st.Phase = PhaseChooseQueryType
		return reply(replyQueryMenu)
	}
	return reply(replyOnboarding)
}

func (e *Engine) handleChooseQueryType(st *State, text string) turn {
	switch {
	case containsAny(text, "票價", "1") || containsAnyFold(text, "fare"):
		st.Phase = PhaseCollectOrigin
		return reply(replyAskOrigin)
	case containsAny(text, "車次", "2") || containsAnyFold(text, "schedule"):
		return reply(replyScheduleUnavailable)
	case containsAny(text, "退出", "3") || containsAnyFold(text, "exit"):
		*st = State{}
		return reply(replyExited)
	default:
		return reply(replyInvalidQueryType)
	}
}

func (e *Engine) handleCollectOrigin(ctx context.Context, userID string, st *State, text string) turn {
	if isStationPhaseExit(text) {
		*st = State{}
		return reply(replyExited)
	}

	station, err := e.resolveStation(ctx, "resolve_origin", userID, text)
	if err != nil {
		return reply(replyOriginNotFound)
	}
	st.OriginStationID = station.StationID
	st.Phase = PhaseCollectDestination
	return reply(replyAskDestination)
}

func (e *Engine) handleCollectDestination(ctx context.Context, userID string, st *State, text string) turn {
	if isStationPhaseExit(text) {
		*st = State{}
		return reply(replyExited)
	}
	requireField(userID, st, "OriginStationID", st.OriginStationID)

	station, err := e.resolveStation(ctx, "resolve_destination", userID, text)
	if err != nil {
		return reply(replyDestinationNotFound)
	}
	st.DestinationStationID = station.StationID
	st.Phase = PhaseCollectCabin
	return reply(replyCabinMenu)
}

func (e *Engine) handleCollectCabin(ctx context.Context, userID string, st *State, text string) turn {
	if strings.Contains(text, "退出") {
		*st = State{}
		return reply(replyExited)
	}

	cabin, ok := parseCabin(text)
	if !ok {
		return reply(replyInvalidCabin)
	}
	requireField(userID, st, "OriginStationID", st.OriginStationID)
	requireField(userID, st, "DestinationStationID", st.DestinationStationID)

	query := tdx.NewFareQuery(st.OriginStationID, st.DestinationStationID, cabin)
	price, err := e.getFare(ctx, userID, query)
	if err != nil {
		return reply(replyFareUnavailable)
	}
	origin, err := e.resolveStation(ctx, "resolve_origin_name", userID, st.OriginStationID)
	if err != nil {
		return reply(replyFareUnavailable)
	}
	destination, err := e.resolveStation(ctx, "resolve_destination_name", userID, st.DestinationStationID)
	if err != nil {
		return reply(replyFareUnavailable)
	}

	st.CabinClass = int(cabin)
	result := fareResultReply(origin, destination, tdx.CabinClass(st.CabinClass), price)
	e.logger.Info("conversation: fare query completed",
		"user_id", userID,
		"origin", st.OriginStationID,
		"destination", st.DestinationStationID,
		"cabin_class", st.CabinClass,
		"price", price,
	)
	*st = State{}
	return turn{replies: []string{result}, completed: true}
}

func (e *Engine) resolveStation(ctx context.Context, op, userID, input string) (*tdx.Station, error) {
	start := time.Now()
	station, err := e.directory.ResolveStation(ctx, input)
	e.observeLookup(op, userID, start, err)
	if err == nil && (station == nil || station.StationID == "") {
		return nil, tdx.ErrNotFound
	}
	return station, err
}

func (e *Engine) getFare(ctx context.Context, userID string, q tdx.FareQuery) (int, error) {
	start := time.Now()
	price, err := e.directory.GetFare(ctx, q)
	e.observeLookup("get_fare", userID, start, err)
	return price, err
}

// observeLookup logs not-found and transient failures at different levels
// so upstream outages stand out from user typos.
func (e *Engine) observeLookup(op, userID string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	switch {
	case err == nil:
		e.metrics.ObserveLookup(op, metrics.OutcomeSuccess, elapsed)
	case errors.Is(err, tdx.ErrNotFound):
		e.metrics.ObserveLookup(op, metrics.OutcomeNotFound, elapsed)
		e.logger.Info("conversation: lookup found nothing", "operation", op, "user_id", userID)
	case tdx.IsTransient(err):
		e.metrics.ObserveLookup(op, metrics.OutcomeTransient, elapsed)
		e.logger.Warn("conversation: tdx unavailable", "operation", op, "user_id", userID, "error", err)
	default:
		e.metrics.ObserveLookup(op, metrics.OutcomeError, elapsed)
		e.logger.Error("conversation: lookup failed", "operation", op, "user_id", userID, "error", err)
	}
}

func requireField(userID string, st *State, field, value string) {
	if value == "" {
		panic(&InvariantError{UserID: userID, Phase: st.Phase, Field: field})
	}
}

// parseCabin maps a cabin choice to its code; the first matching option wins.
func parseCabin(text string) (tdx.CabinClass, bool) {
	switch {
	case containsAny(text, "1", "標準") || containsAnyFold(text, "standard"):
		return tdx.CabinStandard, true
	case containsAny(text, "2", "商務") || containsAnyFold(text, "business"):
		return tdx.CabinBusiness, true
	case containsAny(text, "3", "自由") || containsAnyFold(text, "economy"):
		return tdx.CabinNonReserved, true
	default:
		return 0, false
	}
}

// isStationPhaseExit matches an exit request while a station is expected.
// Only a bare "3" counts so station ids are never mistaken for it.
func isStationPhaseExit(text string) bool {
	return strings.TrimSpace(text) == "3" || strings.Contains(text, "退出")
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func containsAnyFold(text string, keywords ...string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
