// Package inspection defines ISAR inspection events and the durable record
// created from each inspection result.
package inspection

import (
	"errors"
	"time"
)

// Bus topics carrying ISAR events.
const (
	TopicResult = "isar.inspection_result"
	TopicValue  = "isar.inspection_value"
)

var (
	ErrInvalidEvent   = errors.New("invalid inspection event")
	ErrRecordNotFound = errors.New("inspection record not found")
)

// ResultEvent is published by a robot once an inspection has produced data.
type ResultEvent struct {
	InspectionID       string    `json:"inspection_id"`
	TagID              string    `json:"tag_id"`
	Description        string    `json:"inspection_description"`
	InspectionType     string    `json:"inspection_type,omitempty"`
	InstallationCode   string    `json:"installation_code,omitempty"`
	RobotName          string    `json:"robot_name,omitempty"`
	ISARID             string    `json:"isar_id,omitempty"`
	RawDataPath        string    `json:"raw_data_path,omitempty"`
	VisualizedDataPath string    `json:"visualized_data_path,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Value is one raw measurement inside a ValueEvent.
type Value struct {
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
}

// ValueEvent carries raw measurements for an inspection.
type ValueEvent struct {
	InspectionID     string  `json:"inspection_id"`
	TagID            string  `json:"tag_id,omitempty"`
	InstallationCode string  `json:"installation_code,omitempty"`
	RobotName        string  `json:"robot_name,omitempty"`
	Values           []Value `json:"values"`
}

// Record is the durable form of a ResultEvent. At most one exists per
// InspectionID.
type Record struct {
	ID                 string    `json:"id"`
	InspectionID       string    `json:"inspection_id"`
	TagID              string    `json:"tag_id"`
	Description        string    `json:"inspection_description"`
	InspectionType     string    `json:"inspection_type,omitempty"`
	InstallationCode   string    `json:"installation_code,omitempty"`
	RobotName          string    `json:"robot_name,omitempty"`
	ISARID             string    `json:"isar_id,omitempty"`
	RawDataPath        string    `json:"raw_data_path,omitempty"`
	VisualizedDataPath string    `json:"visualized_data_path,omitempty"`
	InspectedAt        time.Time `json:"inspected_at,omitzero"`
	CreatedAt          time.Time `json:"created_at"`
}
