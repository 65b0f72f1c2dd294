package model

import "time"

// Stage is the conversation lifecycle stage (spec §3
// ConversationSession).
type Stage string

const (
	StageWelcome          Stage = "welcome"
	StageDiscovery        Stage = "discovery"
	StageQualification    Stage = "qualification"
	StageSolarCalculation Stage = "solar_calculation"
	StageDisqualified     Stage = "disqualified"
	StageCompleted        Stage = "completed"
)

// TrackerState is the revenue-tracker state machine (spec §4.2).
type TrackerState string

const (
	StateActive     TrackerState = "active"
	StateQualifying TrackerState = "qualifying"
	StateReady      TrackerState = "ready"
	StateDispatched TrackerState = "dispatched"
	StateClosed     TrackerState = "closed"
	StateExpired    TrackerState = "expired"
)

// SlotValue is one extracted conversational attribute with its model
// confidence (spec §3 ConversationSession.extracted_slots).
type SlotValue struct {
	Value      interface{}
	Confidence float64
}

// MessageMeta accompanies an inbound conversation turn event (spec
// §6).
type MessageMeta struct {
	Intent           string
	Sentiment        float64 // -1..1
	ObjectionsHandled []string
	UrgencyCreated   bool
}

// ConversationSession is the ordered, finite sequence of messages
// bound to at most one Lead (spec §3).
type ConversationSession struct {
	ID             SessionID
	LeadID         *LeadID
	StartTime      time.Time
	LastActivity   time.Time
	MessageCount   int
	ExtractedSlots map[string]SlotValue
	Stage          Stage
}

// NewSession creates a freshly opened session.
func NewSession(id SessionID, now time.Time) *ConversationSession {
	return &ConversationSession{
		ID:             id,
		StartTime:      now,
		LastActivity:   now,
		ExtractedSlots: make(map[string]SlotValue),
		Stage:          StageWelcome,
	}
}

// MergeSlots folds newly extracted slots into the session, keeping
// the higher-confidence value on conflict.
func (s *ConversationSession) MergeSlots(slots map[string]SlotValue) {
	for k, v := range slots {
		existing, ok := s.ExtractedSlots[k]
		if !ok || v.Confidence >= existing.Confidence {
			s.ExtractedSlots[k] = v
		}
	}
}

// StringSlot returns a slot's value as a string, or "" if absent or
// not a string.
func (s *ConversationSession) StringSlot(name string) string {
	v, ok := s.ExtractedSlots[name]
	if !ok {
		return ""
	}
	str, _ := v.Value.(string)
	return str
}

// BoolSlotPtr returns a slot's boolean value, or nil if absent or not
// a bool — used for the ownership gate where "unknown" must be
// distinguished from "false" (spec §4.1).
func (s *ConversationSession) BoolSlotPtr(name string) *bool {
	v, ok := s.ExtractedSlots[name]
	if !ok {
		return nil
	}
	b, ok := v.Value.(bool)
	if !ok {
		return nil
	}
	return &b
}
