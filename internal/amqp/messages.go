package amqp

import (
	"encoding/json"
	"time"
)

// FilingCreatedMessage announces a stored filing. The worker loads the
// filing itself from the database.
type FilingCreatedMessage struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewFilingCreatedMessage(id int64) *FilingCreatedMessage {
	return &FilingCreatedMessage{
		ID:        id,
		Timestamp: time.Now(),
	}
}

func (m *FilingCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func FilingCreatedMessageFromJSON(data []byte) (*FilingCreatedMessage, error) {
	var msg FilingCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
