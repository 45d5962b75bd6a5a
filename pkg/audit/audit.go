// Package audit keeps the write-once safety-event trail. Rows are appended,
// never edited; severity is clamped to [1,5] at the boundary so downstream
// rollups can trust the range.
package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	SourceAI     = "ai"
	SourceSystem = "system"
	SourceUser   = "user"
)

const (
	SeverityMin = 1
	SeverityMax = 5
)

// SafetyEvent is one immutable audit record.
type SafetyEvent struct {
	ID          uint              `gorm:"primaryKey" json:"-"`
	Timestamp   string            `gorm:"index" json:"timestamp"`
	SessionID   string            `gorm:"index" json:"session_id"`
	EventType   string            `json:"event_type"`
	Severity    int               `json:"severity"`
	Description string            `json:"description"`
	Source      string            `json:"source"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
}

// Summary aggregates one session's trail for reporting and the session_ended
// payload.
type Summary struct {
	SessionID          string         `json:"session_id"`
	TotalEvents        int            `json:"total_events"`
	SeverityCounts     map[int]int    `json:"severity_distribution,omitempty"`
	EventTypes         map[string]int `json:"event_types,omitempty"`
	CriticalEvents     int            `json:"critical_events"`
	HighSeverityEvents int            `json:"high_severity_events"`
	FirstEvent         string         `json:"first_event,omitempty"`
	LastEvent          string         `json:"last_event,omitempty"`
}

// SessionOverview is one row of the all-sessions rollup.
type SessionOverview struct {
	SessionID      string `json:"session_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	EventCount     int    `json:"event_count"`
	CriticalEvents int    `json:"critical_events"`
}

func ClampSeverity(severity int) int {
	if severity < SeverityMin {
		return SeverityMin
	}
	if severity > SeverityMax {
		return SeverityMax
	}
	return severity
}

type Trail struct {
	db *gorm.DB
}

func Open(path string) (*Trail, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit trail: %w", err)
	}
	return NewTrail(db)
}

func NewTrail(db *gorm.DB) (*Trail, error) {
	if err := db.AutoMigrate(&SafetyEvent{}); err != nil {
		return nil, fmt.Errorf("migrate audit trail: %w", err)
	}
	return &Trail{db: db}, nil
}

// Record appends one event and returns it with timestamp and clamped
// severity filled in. Callers on the live path treat failures as best-effort:
// log and move on, never stall the conversation.
func (t *Trail) Record(ctx context.Context, sessionID, eventType string, severity int, description, source string, metadata map[string]any) (SafetyEvent, error) {
	event := SafetyEvent{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		SessionID:   sessionID,
		EventType:   eventType,
		Severity:    ClampSeverity(severity),
		Description: description,
		Source:      source,
	}
	if len(metadata) > 0 {
		event.Metadata = datatypes.JSONMap(metadata)
	}
	if err := t.db.WithContext(ctx).Create(&event).Error; err != nil {
		return SafetyEvent{}, fmt.Errorf("record safety event: %w", err)
	}
	return event, nil
}

func (t *Trail) SessionEvents(ctx context.Context, sessionID string) ([]SafetyEvent, error) {
	var events []SafetyEvent
	if err := t.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (t *Trail) SessionSummary(ctx context.Context, sessionID string) (Summary, error) {
	events, err := t.SessionEvents(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{SessionID: sessionID, TotalEvents: len(events)}
	if len(events) == 0 {
		return summary, nil
	}

	summary.SeverityCounts = map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	summary.EventTypes = make(map[string]int)
	for _, ev := range events {
		summary.SeverityCounts[ev.Severity]++
		summary.EventTypes[ev.EventType]++
	}
	summary.CriticalEvents = summary.SeverityCounts[5]
	summary.HighSeverityEvents = summary.SeverityCounts[4] + summary.SeverityCounts[5]
	summary.FirstEvent = events[0].Timestamp
	summary.LastEvent = events[len(events)-1].Timestamp
	return summary, nil
}

// AllSessions rolls up every recorded session, newest first.
func (t *Trail) AllSessions(ctx context.Context) ([]SessionOverview, error) {
	var events []SafetyEvent
	if err := t.db.WithContext(ctx).Order("id").Find(&events).Error; err != nil {
		return nil, err
	}

	byID := make(map[string]*SessionOverview)
	var order []string
	for _, ev := range events {
		ov, ok := byID[ev.SessionID]
		if !ok {
			ov = &SessionOverview{SessionID: ev.SessionID, StartTime: ev.Timestamp}
			byID[ev.SessionID] = ov
			order = append(order, ev.SessionID)
		}
		ov.EndTime = ev.Timestamp
		ov.EventCount++
		if ev.Severity >= 4 {
			ov.CriticalEvents++
		}
	}

	out := make([]SessionOverview, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		out = append(out, *byID[order[i]])
	}
	return out, nil
}
