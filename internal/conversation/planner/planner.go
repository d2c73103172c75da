// Package planner turns conversation history into a structured next-action
// plan via the LLM chat capability. A plan that cannot be parsed is reported
// as not-ok; the orchestrator falls back to a scripted prompt. Planning
// never returns an error to the job layer.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"orderdesk_backend/platform/ai"
	"orderdesk_backend/platform/logger"
)

// Action is the planner's decision for one dialogue turn.
type Action string

const (
	ActionConfirm         Action = "CONFIRM"
	ActionCancel          Action = "CANCEL"
	ActionRequestLocation Action = "REQUEST_LOCATION"
	ActionAskChoice       Action = "ASK_CHOICE"
	ActionAskMoreInfo     Action = "ASK_MORE_INFO"
)

var validActions = map[Action]bool{
	ActionConfirm:         true,
	ActionCancel:          true,
	ActionRequestLocation: true,
	ActionAskChoice:       true,
	ActionAskMoreInfo:     true,
}

// Plan is the structured decision extracted from the model output.
type Plan struct {
	Action  Action `json:"action"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
	Need    string `json:"need,omitempty"`
}

// OrderSummary gives the model the order facts it plans around.
type OrderSummary struct {
	ExternalKey string
	Status      string
	TotalAmount string
	ProductName string
	City        string
}

type Planner struct {
	model   ai.ChatModel
	timeout time.Duration
	log     *logger.Logger
}

func New(model ai.ChatModel, timeout time.Duration, log *logger.Logger) *Planner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Planner{model: model, timeout: timeout, log: log}
}

const systemPrompt = `You are an order confirmation assistant for a Moroccan
e-commerce store, chatting with a customer over WhatsApp. Customers write in
French, Arabic, Moroccan Darija (often in Latin letters) or English; always
answer in the customer's language.

Decide the next action for this conversation and reply with a single JSON
object, nothing else:
{"action": "...", "message": "...", "status": "...", "need": "..."}

action must be one of:
- CONFIRM: the customer clearly agreed to the order
- CANCEL: the customer clearly refused or cancelled
- REQUEST_LOCATION: the delivery address is needed or unclear
- ASK_CHOICE: the customer has not chosen yet; re-offer confirm/cancel/info
- ASK_MORE_INFO: the customer asked a question; answer it in message

message is the exact reply to send to the customer.
status and need are optional hints.`

// Plan builds the model context and extracts a plan. ok=false means the
// caller must use its scripted fallback; err is only logged, never surfaced.
func (p *Planner) Plan(ctx context.Context, order OrderSummary, locale string, history []ai.Message) (Plan, bool) {
	if p.model == nil {
		return Plan{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, ai.Message{Role: "system", Content: orderContext(order, locale)})
	messages = append(messages, history...)

	temp := 0.2
	text, err := p.model.Chat(ctx, messages, ai.Options{Temperature: &temp})
	if err != nil {
		p.log.Warn("planner chat failed", "error", err.Error())
		return Plan{}, false
	}

	plan, err := ParsePlan(text)
	if err != nil {
		p.log.Warn("planner output unparseable", "error", err.Error())
		return Plan{}, false
	}
	return plan, true
}

// ParsePlan extracts the first JSON object from the model text and validates
// it into a Plan.
func ParsePlan(text string) (Plan, error) {
	raw, err := ai.FirstJSONObject(text)
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}

	plan.Action = Action(strings.ToUpper(strings.TrimSpace(string(plan.Action))))
	if !validActions[plan.Action] {
		return Plan{}, fmt.Errorf("unknown plan action %q", plan.Action)
	}
	return plan, nil
}

func orderContext(order OrderSummary, locale string) string {
	var b strings.Builder
	b.WriteString("Order under discussion:\n")
	fmt.Fprintf(&b, "- reference: %s\n", order.ExternalKey)
	fmt.Fprintf(&b, "- status: %s\n", order.Status)
	if order.ProductName != "" {
		fmt.Fprintf(&b, "- product: %s\n", order.ProductName)
	}
	if order.TotalAmount != "" {
		fmt.Fprintf(&b, "- total: %s MAD\n", order.TotalAmount)
	}
	if order.City != "" {
		fmt.Fprintf(&b, "- city: %s\n", order.City)
	}
	if locale != "" {
		fmt.Fprintf(&b, "The customer's preferred language tag is %q.\n", locale)
	}
	return b.String()
}
