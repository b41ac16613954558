package models

import "time"

// EventType classifies what is being booked in the lab.
type EventType string

const (
	EventTypeEvent    EventType = "event"
	EventTypeVisit    EventType = "visit"
	EventTypeMeeting  EventType = "meeting"
	EventTypeWorkshop EventType = "workshop"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeEvent, EventTypeVisit, EventTypeMeeting, EventTypeWorkshop:
		return true
	}
	return false
}

// Label returns the display name for the type.
func (t EventType) Label() string {
	switch t {
	case EventTypeEvent:
		return "Event"
	case EventTypeVisit:
		return "Technical visit"
	case EventTypeMeeting:
		return "Meeting"
	case EventTypeWorkshop:
		return "Workshop"
	default:
		return string(t)
	}
}

// EventRequest is a request to book the lab for an event or visit.
type EventRequest struct {
	BaseModel

	Title       string        `gorm:"size:200;not null" json:"title"`
	Type        EventType     `gorm:"size:20;not null" json:"type"`
	Description string        `gorm:"type:text" json:"description"`
	StartsAt    time.Time     `gorm:"index;not null" json:"starts_at"`
	EndsAt      time.Time     `gorm:"not null" json:"ends_at"`
	Status      RequestStatus `gorm:"size:10;index;not null;default:pending" json:"status"`

	CreatedByID string   `gorm:"size:13;index;not null" json:"created_by_id"`
	CreatedBy   *Account `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`

	ReviewedBy *string    `gorm:"size:13" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	Reason     string     `gorm:"size:500" json:"reason,omitempty"`
}
