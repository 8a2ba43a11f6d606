package webhook

import (
	"context"
	"time"
)

// EventPublisher puts accepted payloads on the event bus.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, data []byte) (int64, error)
}

// Config holds webhook server configuration.
type Config struct {
	Listen    string
	Endpoints []EndpointConfig
}

// EndpointConfig binds one webhook path to a bus topic.
type EndpointConfig struct {
	// Path is the URL path for this webhook (e.g., "/isar/inspection-result").
	Path string

	// Topic is the bus topic the verified body is published on.
	Topic string

	// Secret is the HMAC secret for signature verification.
	Secret string

	// SignatureHeader carries the HMAC signature, e.g. "X-Signature-256".
	SignatureHeader string

	// MaxBodySize is the maximum request body size in bytes.
	MaxBodySize int64
}

// TriggerResponse is the JSON response for accepted webhook payloads.
type TriggerResponse struct {
	EventID      int64  `json:"event_id"`
	InspectionID string `json:"inspection_id"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultSignatureHeader = "X-Signature-256"
	publishTimeout         = 10 * time.Second
)
