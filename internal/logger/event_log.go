package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType classifies event log records
type EventType string

const (
	EventTypeWalletTransfer  EventType = "WALLET_TRANSFER"
	EventTypeCEXTrade        EventType = "CEX_TRADE"
	EventTypeSmartContract   EventType = "SMART_CONTRACT"
	EventTypeRiskBreach      EventType = "RISK_BREACH"
	EventTypeStateTransition EventType = "STATE_TRANSITION"
	EventTypeDrift           EventType = "RECONCILIATION_DRIFT"
)

// Severity grades an event for operator attention
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one structured event log record. Order is monotonic per run.
type Event struct {
	Order           uint64    `json:"order"`
	Timestamp       time.Time `json:"timestamp"`
	EventType       EventType `json:"event_type"`
	Venue           string    `json:"venue,omitempty"`
	Token           string    `json:"token,omitempty"`
	Amount          float64   `json:"amount,omitempty"`
	Details         string    `json:"details,omitempty"`
	Severity        Severity  `json:"severity"`
	Purpose         string    `json:"purpose,omitempty"`
	TransactionType string    `json:"transaction_type,omitempty"`
}

// EventLog is the append-only per-run event stream. Records are assigned
// a monotonic order number and streamed to a jsonl file as they arrive.
type EventLog struct {
	mu     sync.Mutex
	order  uint64
	events []Event
	file   *os.File
}

// NewEventLog creates the event log backed by <dir>/<runID>_events.jsonl
func NewEventLog(dir, runID string) (*EventLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_events.jsonl", runID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log file: %w", err)
	}

	return &EventLog{file: file}, nil
}

// NewMemoryEventLog creates an event log with no file backing, for
// simulated runs and tests
func NewMemoryEventLog() *EventLog {
	return &EventLog{}
}

// Append records an event, assigning its order number, and returns the
// recorded copy
func (e *EventLog) Append(event Event) Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	event.Order = e.order
	e.order++
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.events = append(e.events, event)

	if e.file != nil {
		if data, err := json.Marshal(event); err == nil {
			e.file.WriteString(string(data) + "\n")
		}
	}

	return event
}

// Events returns a copy of all recorded events in order
func (e *EventLog) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// EventsOfType returns recorded events matching the given type
func (e *EventLog) EventsOfType(eventType EventType) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Event
	for _, event := range e.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

// Close syncs and closes the backing file, if any
func (e *EventLog) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file != nil {
		e.file.Sync()
		return e.file.Close()
	}
	return nil
}
