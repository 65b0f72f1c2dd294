package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-solar/core/internal/model"
)

// TurnEnvelope is the wire shape of a conversation.turns record (spec
// §6 inbound conversation turn event).
type TurnEnvelope struct {
	SessionID      string                  `json:"session_id"`
	Timestamp      time.Time               `json:"timestamp"`
	ExtractedSlots map[string]slotEnvelope `json:"extracted_slots"`
	MessageMeta    messageMetaEnvelope     `json:"message_meta"`
}

type slotEnvelope struct {
	Value      interface{} `json:"value"`
	Confidence float64     `json:"confidence"`
}

type messageMetaEnvelope struct {
	Intent            string   `json:"intent"`
	Sentiment         float64  `json:"sentiment"`
	ObjectionsHandled []string `json:"objections_handled"`
	UrgencyCreated    bool     `json:"urgency_created"`
}

// DecodeTurn unmarshals a conversation.turns record body.
func DecodeTurn(body []byte) (*TurnEnvelope, error) {
	var env TurnEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("eventbus: decode turn: %w", err)
	}
	return &env, nil
}

// ParseSessionID parses the envelope's session id into its model type.
func (e *TurnEnvelope) ParseSessionID() (model.SessionID, error) { return model.ParseID(e.SessionID) }

// Slots converts the wire slot map into model.SlotValue form, ready
// for ConversationSession.MergeSlots / tracker.Tracker.OnMessage.
func (e *TurnEnvelope) Slots() map[string]model.SlotValue {
	out := make(map[string]model.SlotValue, len(e.ExtractedSlots))
	for k, v := range e.ExtractedSlots {
		out[k] = model.SlotValue{Value: v.Value, Confidence: v.Confidence}
	}
	return out
}

// Meta converts the wire message metadata into its model type.
func (e *TurnEnvelope) Meta() model.MessageMeta {
	return model.MessageMeta{
		Intent:            e.MessageMeta.Intent,
		Sentiment:         e.MessageMeta.Sentiment,
		ObjectionsHandled: e.MessageMeta.ObjectionsHandled,
		UrgencyCreated:    e.MessageMeta.UrgencyCreated,
	}
}

// FeedbackEnvelope is the wire shape of a buyer.feedback record (spec
// §3 BuyerFeedback).
type FeedbackEnvelope struct {
	FeedbackID      string           `json:"feedback_id"`
	LeadID          string           `json:"lead_id"`
	PlatformCode    string           `json:"platform_code"`
	Type            string           `json:"type"`
	QualityScore    float64          `json:"quality_score"`
	ConversionValue *decimal.Decimal `json:"conversion_value,omitempty"`
	Tier            string           `json:"tier"`
	Reason          string           `json:"reason,omitempty"`
	ReceivedAt      time.Time        `json:"received_at"`
}

// DecodeFeedback unmarshals a buyer.feedback record body.
func DecodeFeedback(body []byte) (*FeedbackEnvelope, error) {
	var env FeedbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("eventbus: decode feedback: %w", err)
	}
	return &env, nil
}

// ToModel converts the wire envelope into model.BuyerFeedback plus
// the tier the lead held at dispatch time, required by
// feedback.Loop.Consume.
func (e *FeedbackEnvelope) ToModel() (*model.BuyerFeedback, model.Tier, error) {
	leadID, err := model.ParseID(e.LeadID)
	if err != nil {
		return nil, "", fmt.Errorf("eventbus: invalid lead_id: %w", err)
	}
	return &model.BuyerFeedback{
		FeedbackID:      e.FeedbackID,
		LeadID:          leadID,
		PlatformCode:    e.PlatformCode,
		Type:            model.FeedbackType(e.Type),
		QualityScore:    e.QualityScore,
		ConversionValue: e.ConversionValue,
		Reason:          e.Reason,
		ReceivedAt:      e.ReceivedAt,
	}, model.Tier(e.Tier), nil
}
