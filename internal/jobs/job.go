// Package jobs tracks in-memory background runs and their progress log.
package jobs

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type MessageType string

const (
	MessageReport  MessageType = "report"
	MessageError   MessageType = "error"
	MessageSuccess MessageType = "success"
)

// Message is one progress entry. Report messages carry From, Subject and
// AttachmentName, the other types carry Text.
type Message struct {
	Type           MessageType
	From           string
	Subject        string
	AttachmentName string
	Text           string
}

type reportJSON struct {
	Type           MessageType `json:"type"`
	From           string      `json:"from"`
	Subject        string      `json:"subject"`
	AttachmentName string      `json:"attachmentName"`
}

type textJSON struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case MessageReport:
		return json.Marshal(reportJSON{Type: m.Type, From: m.From, Subject: m.Subject, AttachmentName: m.AttachmentName})
	case MessageError, MessageSuccess:
		return json.Marshal(textJSON{Type: m.Type, Message: m.Text})
	}
	return nil, fmt.Errorf("unknown message type %q", m.Type)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var head struct {
		Type           MessageType `json:"type"`
		From           string      `json:"from"`
		Subject        string      `json:"subject"`
		AttachmentName string      `json:"attachmentName"`
		Message        string      `json:"message"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case MessageReport:
		*m = Message{Type: head.Type, From: head.From, Subject: head.Subject, AttachmentName: head.AttachmentName}
	case MessageError, MessageSuccess:
		*m = Message{Type: head.Type, Text: head.Message}
	default:
		return fmt.Errorf("unknown message type %q", head.Type)
	}
	return nil
}

// Job is a single background run. All methods are safe for concurrent use.
type Job struct {
	id        string
	startedAt time.Time

	mu          sync.Mutex
	completed   bool
	canceled    bool
	completedAt time.Time
	messages    []Message
	cancel      func()
}

// Snapshot is a point-in-time copy of a Job.
type Snapshot struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	Completed bool      `json:"completed"`
	Canceled  bool      `json:"canceled"`
	Messages  []Message `json:"messages"`
}

func (j *Job) ID() string { return j.id }

func (j *Job) Report(from, subject, attachmentName string) {
	j.append(Message{Type: MessageReport, From: from, Subject: subject, AttachmentName: attachmentName})
}

func (j *Job) Error(text string) {
	j.append(Message{Type: MessageError, Text: text})
}

func (j *Job) Success(text string) {
	j.append(Message{Type: MessageSuccess, Text: text})
}

// Canceled reports whether Cancel was called. Runs poll it between units of
// work.
func (j *Job) Canceled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.canceled
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	msgs := make([]Message, len(j.messages))
	copy(msgs, j.messages)
	return Snapshot{
		ID:        j.id,
		StartedAt: j.startedAt,
		Completed: j.completed,
		Canceled:  j.canceled,
		Messages:  msgs,
	}
}

func (j *Job) append(m Message) {
	j.mu.Lock()
	j.messages = append(j.messages, m)
	j.mu.Unlock()
}

func (j *Job) markCanceled() {
	j.mu.Lock()
	j.canceled = true
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (j *Job) markCompleted(at time.Time) {
	j.mu.Lock()
	j.completed = true
	j.completedAt = at
	j.mu.Unlock()
}

// Completed reports whether the run has returned.
func (j *Job) Completed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.completed
}

func (j *Job) expired(now time.Time, retention time.Duration) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.completed && now.Sub(j.completedAt) > retention
}
