package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventHandoff EventType = "handoff"
	EventExtract EventType = "extract"
)

// HandoffEvent records a query sent to a marketplace.
type HandoffEvent struct {
	Type       EventType `json:"type"`
	ID         string    `json:"id"`
	MerchantID string    `json:"merchant_id"`
	Query      string    `json:"query"`
	Segments   int       `json:"segments"`
	Matched    int       `json:"matched"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

// ExtractEvent records one catalog page turned into a shop section.
type ExtractEvent struct {
	Type           EventType `json:"type"`
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	URL            string    `json:"url,omitempty"`
	Categories     int       `json:"categories"`
	DictionarySize int       `json:"dictionary_size"`
	CacheHit       bool      `json:"cache_hit"`
	Failed         bool      `json:"failed"`
	LatencyMs      int64     `json:"latency_ms"`
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id"`
}

// Extraction sources.
const (
	SourceUpload = "upload"
	SourceURL    = "url"
)

// NewHandoffEvent stamps a handoff with a fresh ID and the current time.
func NewHandoffEvent(merchantID, query string, segments, matched int, requestID string) HandoffEvent {
	return HandoffEvent{
		Type:       EventHandoff,
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		Query:      query,
		Segments:   segments,
		Matched:    matched,
		Timestamp:  time.Now().UTC(),
		RequestID:  requestID,
	}
}

// NewExtractEvent stamps an extraction with a fresh ID and the current time.
func NewExtractEvent(source, url string, requestID string) ExtractEvent {
	return ExtractEvent{
		Type:      EventExtract,
		ID:        uuid.NewString(),
		Source:    source,
		URL:       url,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// DecodeEvent reads the type tag of a serialized event and decodes the
// matching struct.
func DecodeEvent(data []byte) (any, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding event envelope: %w", err)
	}
	switch envelope.Type {
	case EventHandoff:
		var e HandoffEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding handoff event: %w", err)
		}
		return e, nil
	case EventExtract:
		var e ExtractEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding extract event: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", envelope.Type)
	}
}
