package session

import (
	"time"

	"github.com/steveyegge/ftaudit/internal/matcher"
)

// EventType identifies what a session event reports
type EventType string

const (
	// EventProgress reports pairs processed so far. May be dropped.
	EventProgress EventType = "progress"
	// EventMaxScore reports a new running maximum score. May be dropped.
	EventMaxScore EventType = "max_score"
	// EventCompleted carries the result of a finished run
	EventCompleted EventType = "completed"
	// EventCancelled reports a run stopped before completion
	EventCancelled EventType = "cancelled"
	// EventFailed reports a run that ended in error; Reason says why
	EventFailed EventType = "failed"
)

// IsTerminal reports whether the event ends a run
func (t EventType) IsTerminal() bool {
	switch t {
	case EventCompleted, EventCancelled, EventFailed:
		return true
	}
	return false
}

// Event is one message on the session's event channel
type Event struct {
	Type      EventType       `json:"type"`
	RunID     string          `json:"run_id"`
	Timestamp time.Time       `json:"timestamp"`
	Threshold int             `json:"threshold"`
	Processed int             `json:"processed,omitempty"`
	Total     int             `json:"total,omitempty"`
	MaxScore  int             `json:"max_score,omitempty"`
	Result    *matcher.Result `json:"result,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

func progressEvent(runID string, threshold, processed, total int) Event {
	return Event{
		Type:      EventProgress,
		RunID:     runID,
		Timestamp: time.Now(),
		Threshold: threshold,
		Processed: processed,
		Total:     total,
	}
}

func maxScoreEvent(runID string, threshold, score int) Event {
	return Event{
		Type:      EventMaxScore,
		RunID:     runID,
		Timestamp: time.Now(),
		Threshold: threshold,
		MaxScore:  score,
	}
}

func completedEvent(runID string, threshold int, res *matcher.Result) Event {
	return Event{
		Type:      EventCompleted,
		RunID:     runID,
		Timestamp: time.Now(),
		Threshold: threshold,
		MaxScore:  res.MaxScore,
		Processed: res.TotalPairs,
		Total:     res.TotalPairs,
		Result:    res,
	}
}

func cancelledEvent(runID string, threshold int) Event {
	return Event{
		Type:      EventCancelled,
		RunID:     runID,
		Timestamp: time.Now(),
		Threshold: threshold,
	}
}

func failedEvent(runID string, threshold int, reason string) Event {
	return Event{
		Type:      EventFailed,
		RunID:     runID,
		Timestamp: time.Now(),
		Threshold: threshold,
		Reason:    reason,
	}
}
