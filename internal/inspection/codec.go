package inspection

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeResult parses and validates a result event payload.
func DecodeResult(data []byte) (ResultEvent, error) {
	var ev ResultEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ResultEvent{}, fmt.Errorf("%w: decode result: %v", ErrInvalidEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return ResultEvent{}, err
	}
	return ev, nil
}

// DecodeValue parses and validates a value event payload.
func DecodeValue(data []byte) (ValueEvent, error) {
	var ev ValueEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ValueEvent{}, fmt.Errorf("%w: decode value: %v", ErrInvalidEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return ValueEvent{}, err
	}
	return ev, nil
}

// Validate checks the fields the dispatcher depends on.
func (e ResultEvent) Validate() error {
	if strings.TrimSpace(e.InspectionID) == "" {
		return fmt.Errorf("%w: inspection_id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.TagID) == "" {
		return fmt.Errorf("%w: tag_id is required", ErrInvalidEvent)
	}
	return nil
}

// Validate checks the fields the dispatcher depends on.
func (e ValueEvent) Validate() error {
	if strings.TrimSpace(e.InspectionID) == "" {
		return fmt.Errorf("%w: inspection_id is required", ErrInvalidEvent)
	}
	if len(e.Values) == 0 {
		return fmt.Errorf("%w: at least one value is required", ErrInvalidEvent)
	}
	for i, v := range e.Values {
		if strings.TrimSpace(v.Channel) == "" {
			return fmt.Errorf("%w: values[%d].channel is required", ErrInvalidEvent, i)
		}
	}
	return nil
}

// ValidateTopicPayload decodes data according to topic, for ingress adapters
// that only need to reject malformed payloads before publishing.
func ValidateTopicPayload(topic string, data []byte) (string, error) {
	switch topic {
	case TopicResult:
		ev, err := DecodeResult(data)
		return ev.InspectionID, err
	case TopicValue:
		ev, err := DecodeValue(data)
		return ev.InspectionID, err
	default:
		return "", fmt.Errorf("unknown inspection topic %q", topic)
	}
}
