// Package conversation drives order confirmation dialogues over WhatsApp.
// The orchestrator owns the conversation state machine; planning is delegated
// to the LLM planner with scripted fallbacks for every turn.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"orderdesk_backend/internal/conversation/planner"
	"orderdesk_backend/internal/conversation/repository"
	"orderdesk_backend/internal/whatsapp"
	"orderdesk_backend/platform/ai"
	"orderdesk_backend/platform/apperr"
	"orderdesk_backend/platform/logger"
)

// Outcome tells the job layer what happened to a conversation turn. Removable
// means the turn reached a clear outcome and the queue job may be retired.
type Outcome struct {
	ConversationID uuid.UUID
	State          string
	Removable      bool
}

// Statuses the orchestrator writes onto orders. A confirmed order moves
// straight into fulfilment, so the decision status is processing.
const (
	statusConfirmedProjection = "processing"
	statusCancelled           = "cancelled"
)

var orderStatuses = map[string]bool{
	"new": true, "pending": true, "processing": true, "paid": true,
	"shipped": true, "delivered": true, "cancelled": true, "returned": true,
	"failed": true,
}

type Orchestrator struct {
	repo          *repository.Repository
	planner       *planner.Planner
	wa            *whatsapp.Client
	log           *logger.Logger
	historyWindow int
}

func NewOrchestrator(repo *repository.Repository, pl *planner.Planner, wa *whatsapp.Client, historyWindow int, log *logger.Logger) *Orchestrator {
	if historyWindow <= 0 {
		historyWindow = 12
	}
	return &Orchestrator{
		repo:          repo,
		planner:       pl,
		wa:            wa,
		log:           log,
		historyWindow: historyWindow,
	}
}

// Init opens a conversation for an order and sends the three-choice greeting.
// An order without a phone number cannot be contacted and fails loudly; that
// is the one permanent failure of this flow.
func (o *Orchestrator) Init(ctx context.Context, orderID uuid.UUID) (Outcome, error) {
	tx, err := o.repo.Begin(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	order, err := o.repo.GetOrder(ctx, tx, orderID)
	if err != nil {
		if err == repository.ErrNotFound {
			return Outcome{}, apperr.NotFound("order not found").WithOp("conversation.Init")
		}
		return Outcome{}, err
	}
	if order.Phone == nil || strings.TrimSpace(*order.Phone) == "" {
		return Outcome{}, apperr.Validation("order has no phone number").WithOp("conversation.Init")
	}
	if order.Status == statusCancelled || order.Status == "delivered" || order.Status == "returned" {
		return Outcome{State: repository.StateClosed, Removable: true}, nil
	}

	conv, err := o.repo.FindByOrder(ctx, tx, orderID)
	if err != nil {
		return Outcome{}, err
	}
	if conv != nil {
		// Re-initiation is a no-op; the greeting went out once already.
		return Outcome{ConversationID: conv.ID, State: conv.State}, nil
	}

	created, err := o.repo.Create(ctx, tx, repository.CreateParams{
		StoreID: order.StoreID,
		OrderID: order.ID,
		Channel: "whatsapp",
		Contact: *order.Phone,
	})
	if err != nil {
		return Outcome{}, err
	}

	locale := localeOf(&created)
	text, choices := greetingText(locale, deref(order.ProductName), amountText(order.TotalAmount))

	res := o.wa.SendChoices(ctx, *order.Phone, text, choices)
	if res.Err != nil {
		return Outcome{}, apperr.Wrap(apperr.KindUnavailable, "greeting delivery failed", res.Err)
	}

	if err := o.recordOutbound(ctx, tx, created.ID, text, res); err != nil {
		return Outcome{}, err
	}
	state := repository.StateAwaitChoice
	update := repository.MetaUpdate{State: &state}
	if res.ID != "" {
		update.LastOutboundID = &res.ID
	}
	if err := o.repo.UpdateMeta(ctx, tx, created.ID, update); err != nil {
		return Outcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, err
	}
	return Outcome{ConversationID: created.ID, State: repository.StateAwaitChoice}, nil
}

// Incoming processes one customer message and advances the state machine.
// payload is the raw channel envelope; a location share in it settles the
// delivery address no matter what state the conversation is in.
func (o *Orchestrator) Incoming(ctx context.Context, conversationID uuid.UUID, text string, payload []byte) (Outcome, error) {
	tx, err := o.repo.Begin(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	conv, err := o.repo.GetByID(ctx, tx, conversationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return Outcome{}, apperr.NotFound("conversation not found").WithOp("conversation.Incoming")
		}
		return Outcome{}, err
	}

	if err := o.repo.AppendMessage(ctx, tx, conv.ID, "user", text, payload); err != nil {
		return Outcome{}, err
	}

	if conv.ClosedAt != nil || conv.State == repository.StateClosed {
		// Late replies on closed conversations are kept for the record only.
		if err := tx.Commit(ctx); err != nil {
			return Outcome{}, err
		}
		return Outcome{ConversationID: conv.ID, State: conv.State, Removable: true}, nil
	}

	order, err := o.repo.GetOrder(ctx, tx, conv.OrderID)
	if err != nil {
		return Outcome{}, err
	}

	locale := nextLocale(localeOf(&conv), DetectLocale(text))
	addressOK := conv.AddressOK
	if hasLocationSignal(payload) {
		addressOK = true
	}
	if conv.State == repository.StateAddressChange && looksLikeAddress(text) {
		addressOK = true
	}

	history, err := o.repo.ListRecentMessages(ctx, tx, conv.ID, o.historyWindow)
	if err != nil {
		return Outcome{}, err
	}

	plan, ok := o.planner.Plan(ctx, summarize(order), locale, toChat(history))
	if !ok {
		o.log.Warn("planner fallback", "conversation_id", conv.ID.String())
		plan = planner.Plan{Action: planner.ActionAskChoice}
	}

	step := applyPlan(plan, conv.AddressNeeded, addressOK, locale)

	if step.decision != nil {
		if err := o.repo.UpdateOrderDecision(ctx, tx, order.ID, *step.decision); err != nil {
			return Outcome{}, err
		}
	}

	res := o.send(ctx, conv, step)
	if res.Err != nil {
		return Outcome{}, apperr.Wrap(apperr.KindUnavailable, "reply delivery failed", res.Err)
	}
	if err := o.recordOutbound(ctx, tx, conv.ID, step.reply, res); err != nil {
		return Outcome{}, err
	}

	addressNeeded := conv.AddressNeeded || step.needAddress
	update := repository.MetaUpdate{
		State:         &step.state,
		AddressNeeded: &addressNeeded,
		AddressOK:     &addressOK,
		Close:         step.close,
	}
	if locale != "" {
		update.PreferredLocale = &locale
	}
	if res.ID != "" {
		update.LastOutboundID = &res.ID
	}
	if err := o.repo.UpdateMeta(ctx, tx, conv.ID, update); err != nil {
		return Outcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, err
	}
	return Outcome{ConversationID: conv.ID, State: step.state, Removable: step.removable}, nil
}

// Followup nudges a conversation stuck waiting on the customer's choice.
func (o *Orchestrator) Followup(ctx context.Context, conversationID uuid.UUID) (Outcome, error) {
	tx, err := o.repo.Begin(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	conv, err := o.repo.GetByID(ctx, tx, conversationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return Outcome{}, apperr.NotFound("conversation not found").WithOp("conversation.Followup")
		}
		return Outcome{}, err
	}
	if conv.State != repository.StateAwaitChoice {
		return Outcome{ConversationID: conv.ID, State: conv.State, Removable: conv.State == repository.StateConfirmed}, nil
	}

	locale := localeOf(&conv)
	_, choices := greetingText(locale, "", "")
	text := defaultAskText(locale)

	res := o.wa.SendChoices(ctx, deref(conv.Contact), text, choices)
	if res.Err != nil {
		return Outcome{}, apperr.Wrap(apperr.KindUnavailable, "followup delivery failed", res.Err)
	}
	if err := o.recordOutbound(ctx, tx, conv.ID, text, res); err != nil {
		return Outcome{}, err
	}
	update := repository.MetaUpdate{}
	if res.ID != "" {
		update.LastOutboundID = &res.ID
	}
	if err := o.repo.UpdateMeta(ctx, tx, conv.ID, update); err != nil {
		return Outcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, err
	}
	return Outcome{ConversationID: conv.ID, State: conv.State}, nil
}

// planStep is the fully resolved effect of one planner decision.
type planStep struct {
	state       string
	reply       string
	choices     []string
	decision    *repository.DecisionUpdate
	close       bool
	removable   bool
	needAddress bool
}

// applyPlan maps a planner decision onto the state machine. A confirm always
// closes the conversation; whether the queue job retires with it depends on
// the address gate alone.
func applyPlan(plan planner.Plan, addressNeeded, addressOK bool, locale string) planStep {
	switch plan.Action {
	case planner.ActionConfirm:
		return planStep{
			state: repository.StateConfirmed,
			reply: replyOr(plan.Message, confirmReplyText(locale)),
			decision: &repository.DecisionUpdate{
				Status:     confirmStatus(plan.Status),
				By:         "ai",
				Result:     "confirmed",
				Confidence: 1,
				Reason:     plan.Need,
			},
			close:     true,
			removable: clearOutcome(plan.Action, addressNeeded, addressOK),
		}

	case planner.ActionCancel:
		return planStep{
			state: repository.StateCancelled,
			reply: replyOr(plan.Message, cancelReplyText(locale)),
			decision: &repository.DecisionUpdate{
				Status:     statusCancelled,
				By:         "ai",
				Result:     "cancelled",
				Confidence: 1,
				Reason:     plan.Need,
			},
			close: true,
		}

	case planner.ActionRequestLocation:
		return planStep{
			state:       repository.StateAddressChange,
			reply:       replyOr(plan.Message, askLocationText(locale)),
			needAddress: true,
		}

	case planner.ActionAskMoreInfo:
		return planStep{
			state: repository.StateAwaitChoice,
			reply: replyOr(plan.Message, defaultAskText(locale)),
		}

	default: // ActionAskChoice and anything unexpected
		_, choices := greetingText(locale, "", "")
		return planStep{
			state:   repository.StateAwaitChoice,
			reply:   replyOr(plan.Message, defaultAskText(locale)),
			choices: choices,
		}
	}
}

// clearOutcome is the job retirement rule: only a confirm with a settled
// address retires the queue job. Cancellations stay for review.
func clearOutcome(action planner.Action, addressNeeded, addressOK bool) bool {
	return action == planner.ActionConfirm && (!addressNeeded || addressOK)
}

func (o *Orchestrator) send(ctx context.Context, conv repository.Conversation, step planStep) whatsapp.Result {
	to := deref(conv.Contact)
	if len(step.choices) > 0 {
		return o.wa.SendChoices(ctx, to, step.reply, step.choices)
	}
	return o.wa.SendText(ctx, to, step.reply)
}

func (o *Orchestrator) recordOutbound(ctx context.Context, tx pgx.Tx, conversationID uuid.UUID, body string, res whatsapp.Result) error {
	payload := []byte(fmt.Sprintf(`{"configured":%t,"ok":%t}`, res.Configured, res.OK))
	return o.repo.AppendMessage(ctx, tx, conversationID, "assistant", body, payload)
}

func confirmStatus(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if orderStatuses[hint] {
		return hint
	}
	return statusConfirmedProjection
}

// hasLocationSignal reports whether an inbound envelope carries a shared
// location. WhatsApp location messages arrive with type "location" or an
// embedded coordinates object.
func hasLocationSignal(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	var envelope struct {
		Type     string `json:"type"`
		Location *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return false
	}
	return strings.EqualFold(envelope.Type, "location") || envelope.Location != nil
}

// looksLikeAddress accepts anything with enough substance to be a delivery
// address: a street number or a reasonably long free-text description.
func looksLikeAddress(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) >= 12 {
		return true
	}
	for _, r := range trimmed {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func summarize(order repository.Order) planner.OrderSummary {
	return planner.OrderSummary{
		ExternalKey: order.ExternalKey,
		Status:      order.Status,
		TotalAmount: amountText(order.TotalAmount),
		ProductName: deref(order.ProductName),
		City:        deref(order.City),
	}
}

func toChat(history []repository.Message) []ai.Message {
	out := make([]ai.Message, 0, len(history))
	for _, m := range history {
		out = append(out, ai.Message{Role: m.Role, Content: m.Body})
	}
	return out
}

func amountText(amount *float64) string {
	if amount == nil {
		return ""
	}
	return strconv.FormatFloat(*amount, 'f', 2, 64)
}

func localeOf(conv *repository.Conversation) string {
	if conv != nil && conv.PreferredLocale != nil {
		return *conv.PreferredLocale
	}
	return ""
}

func replyOr(message, fallback string) string {
	if strings.TrimSpace(message) != "" {
		return message
	}
	return fallback
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
