package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// Topic and event names.
const (
	TopicRunCompleted = "dockpipe.runs"
	TopicRunRequested = "dockpipe.requests"
	TopicDeadLetter   = "dockpipe.dead_letter"

	EventRunCompleted = "run.completed"
	EventRunRequested = "run.requested"

	eventSource   = "dockpipe"
	schemaVersion = "v1"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RunCompletedPayload announces a finished run.  Top holds at most
// topEntries of the ranking.
type RunCompletedPayload struct {
	RunID       string          `json:"run_id"`
	Receptor    string          `json:"receptor"`
	Library     string          `json:"library,omitempty"`
	Status      docking.Status  `json:"status"`
	Docked      int             `json:"docked"`
	DockFailed  int             `json:"dock_failed"`
	ParseFailed int             `json:"parse_failed"`
	Ranked      int             `json:"ranked"`
	Top         docking.Ranking `json:"top"`
	ArchivePath string          `json:"archive_path,omitempty"`
	FinishedAt  time.Time       `json:"finished_at"`
	DurationMs  int64           `json:"duration_ms"`
}

// RunRequestedPayload asks a worker to run the pipeline.  A nil PH uses the
// worker's configured pH.
type RunRequestedPayload struct {
	WorkDir       string   `json:"workdir"`
	Receptor      string   `json:"receptor"`
	DockingConfig string   `json:"config"`
	Ligands       string   `json:"ligands,omitempty"`
	PH            *float64 `json:"ph,omitempty"`
	Complexes     int      `json:"complexes,omitempty"`
}

const topEntries = 10

// NewRunCompletedPayload summarises s for the event stream.
func NewRunCompletedPayload(s *docking.RunSummary) RunCompletedPayload {
	return RunCompletedPayload{
		RunID:       s.ID,
		Receptor:    s.Receptor,
		Library:     s.Library,
		Status:      s.Status,
		Docked:      s.Docked,
		DockFailed:  s.DockFailed,
		ParseFailed: s.ParseFailed,
		Ranked:      len(s.Ranking),
		Top:         s.Ranking.Top(topEntries),
		ArchivePath: s.ArchivePath,
		FinishedAt:  s.FinishedAt,
		DurationMs:  s.Duration.Milliseconds(),
	}
}

func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        eventSource,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "empty event payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// ToMessage encodes the envelope for topic, keyed by key.
func (e *EventEnvelope) ToMessage(topic, key string) (*Message, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &Message{
		Topic: topic,
		Key:   []byte(key),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

func MessageToEventEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// Publisher is the subset of Producer used by EventPublisher.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// EventPublisher announces finished runs on a topic.
type EventPublisher struct {
	producer Publisher
	topic    string
}

func NewEventPublisher(p Publisher, topic string) *EventPublisher {
	if topic == "" {
		topic = TopicRunCompleted
	}
	return &EventPublisher{producer: p, topic: topic}
}

func (e *EventPublisher) Name() string { return "kafka" }

// Publish sends a run.completed event keyed by receptor, so runs against the
// same receptor stay ordered.
func (e *EventPublisher) Publish(ctx context.Context, s *docking.RunSummary) error {
	env, err := NewEventEnvelope(EventRunCompleted, NewRunCompletedPayload(s))
	if err != nil {
		return err
	}
	env.Metadata = map[string]string{"run_id": s.ID}
	msg, err := env.ToMessage(e.topic, s.Receptor)
	if err != nil {
		return err
	}
	return e.producer.Publish(ctx, msg)
}
