package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"orderdesk_backend/internal/ingestion/fetcher"
	"orderdesk_backend/internal/ingestion/mapper"
)

const TaskSourceScan = "source.scan"

const TaskOrderIngest = "order.ingest"

const TaskConversationInit = "conversation.init"

const TaskConversationIncoming = "conversation.incoming"

const TaskConversationFollowup = "conversation.followup"

// OrderIngestPayload triggers one ingest run for a store. Source and Mapping
// override the store's configured source for one-off runs.
type OrderIngestPayload struct {
	StoreID string          `json:"storeId" validate:"required,uuid"`
	Source  *fetcher.Source `json:"source,omitempty"`
	Mapping *mapper.Mapping `json:"mapping,omitempty"`
	Entity  string          `json:"entity,omitempty" validate:"omitempty,oneof=orders products"`
	Limit   int             `json:"limit,omitempty" validate:"gte=0"`
}

type ConversationInitPayload struct {
	StoreID string `json:"storeId"`
	OrderID string `json:"orderId"`
	JobID   string `json:"jobId,omitempty"`
}

type ConversationIncomingPayload struct {
	StoreID        string          `json:"storeId"`
	ConversationID string          `json:"conversationId"`
	From           string          `json:"from,omitempty"`
	Text           string          `json:"text"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	JobID          string          `json:"jobId,omitempty"`
}

type ConversationFollowupPayload struct {
	StoreID        string `json:"storeId"`
	ConversationID string `json:"conversationId"`
	JobID          string `json:"jobId,omitempty"`
}

func NewSourceScanTask() *asynq.Task {
	return asynq.NewTask(TaskSourceScan, nil)
}

func NewOrderIngestTask(payload OrderIngestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderIngest, data), nil
}

func ParseOrderIngestPayload(task *asynq.Task) (OrderIngestPayload, error) {
	var payload OrderIngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OrderIngestPayload{}, err
	}
	return payload, nil
}

func NewConversationInitTask(payload ConversationInitPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConversationInit, data), nil
}

func ParseConversationInitPayload(task *asynq.Task) (ConversationInitPayload, error) {
	var payload ConversationInitPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConversationInitPayload{}, err
	}
	return payload, nil
}

func NewConversationIncomingTask(payload ConversationIncomingPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConversationIncoming, data), nil
}

func ParseConversationIncomingPayload(task *asynq.Task) (ConversationIncomingPayload, error) {
	var payload ConversationIncomingPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConversationIncomingPayload{}, err
	}
	return payload, nil
}

func NewConversationFollowupTask(payload ConversationFollowupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConversationFollowup, data), nil
}

func ParseConversationFollowupPayload(task *asynq.Task) (ConversationFollowupPayload, error) {
	var payload ConversationFollowupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConversationFollowupPayload{}, err
	}
	return payload, nil
}
