package domain

import "time"

// EventTypeOrderValidated is emitted by the risk pipeline for every accepted order.
const EventTypeOrderValidated = "ORDER_VALIDATED"

// OrderEvent wraps an order on the validated-orders topic.
type OrderEvent struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	Timestamp     time.Time      `json:"timestamp"`
	SourceService string         `json:"source_service"`
	Order         Order          `json:"order"`
	Metadata      *EventMetadata `json:"metadata,omitempty"`
}

// EventMetadata carries correlation details for downstream consumers.
type EventMetadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	IPAddress     string `json:"ip_address,omitempty"`
	Version       string `json:"version"`
}
