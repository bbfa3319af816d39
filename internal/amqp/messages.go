package amqp

import (
	"encoding/json"
	"time"

	"fintrack/internal/core"
)

// MaterializeRequest asks a worker to run a materialization pass for a user.
type MaterializeRequest struct {
	UserID      string    `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewMaterializeRequest(userID string, at time.Time) *MaterializeRequest {
	return &MaterializeRequest{UserID: userID, RequestedAt: at}
}

func (m *MaterializeRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MaterializeRequestFromJSON(data []byte) (*MaterializeRequest, error) {
	var msg MaterializeRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// NotificationEvent announces a stored notification to push delivery. It
// carries identifiers only; consumers read the rest from the API.
type NotificationEvent struct {
	UserID         string    `json:"user_id"`
	NotificationID string    `json:"notification_id"`
	Header         string    `json:"header"`
	Type           string    `json:"type"`
	TransactionID  string    `json:"transaction_id"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewNotificationEvent(n core.Notification) *NotificationEvent {
	return &NotificationEvent{
		UserID:         n.UserID,
		NotificationID: n.ID,
		Header:         n.Header,
		Type:           n.Type,
		TransactionID:  n.Transaction.ID,
		Timestamp:      n.CreatedAt,
	}
}

func (e *NotificationEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func NotificationEventFromJSON(data []byte) (*NotificationEvent, error) {
	var msg NotificationEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
