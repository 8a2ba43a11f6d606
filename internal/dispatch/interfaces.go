package dispatch

import (
	"context"

	"github.com/mattjoyce/plantdata-gw/internal/analysis"
	"github.com/mattjoyce/plantdata-gw/internal/inspection"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mattjoyce/plantdata-gw/internal/dispatch RecordStore,AtomicRecordStore,AnalysisResolver,WorkflowTrigger,TimeseriesForwarder

// RecordStore holds one durable record per inspection.
type RecordStore interface {
	Exists(ctx context.Context, inspectionID string) (bool, error)
	Create(ctx context.Context, ev inspection.ResultEvent) (*inspection.Record, error)
}

// AtomicRecordStore can create a record only if none exists, in one step.
type AtomicRecordStore interface {
	RecordStore
	CreateIfAbsent(ctx context.Context, ev inspection.ResultEvent) (*inspection.Record, bool, error)
}

// AnalysisResolver maps a tag and description to the analyses that apply.
type AnalysisResolver interface {
	Resolve(tagID, description string) analysis.Set
}

// WorkflowTrigger starts the asynchronous analysis workflow for a record.
type WorkflowTrigger interface {
	TriggerAnalysis(ctx context.Context, rec *inspection.Record, runConstantLevelOiler bool) error
}

// TimeseriesForwarder persists raw inspection values.
type TimeseriesForwarder interface {
	Forward(ctx context.Context, ev inspection.ValueEvent) error
}
