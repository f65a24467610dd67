package dynamodb

import (
	"context"

	"stash-backend/application/ports"
	"stash-backend/pkg/observability"
)

// TracedUnitOfWork records each commit as an X-Ray subsegment annotated with
// the entity type and history action, so stale-write rejections are
// searchable in traces.
type TracedUnitOfWork struct {
	inner  ports.UnitOfWork
	tracer *observability.Tracer
}

// NewTracedUnitOfWork wraps a unit of work with tracing
func NewTracedUnitOfWork(inner ports.UnitOfWork, tracer *observability.Tracer) *TracedUnitOfWork {
	return &TracedUnitOfWork{inner: inner, tracer: tracer}
}

// CommitEntityWrite implements ports.UnitOfWork
func (u *TracedUnitOfWork) CommitEntityWrite(ctx context.Context, write ports.EntityWrite) error {
	return u.tracer.Capture(ctx, "CommitEntityWrite", func(ctx context.Context) error {
		u.tracer.AddAnnotation(ctx, "entity_type", string(write.Entity.Type))
		u.tracer.AddAnnotation(ctx, "action", string(write.Entry.Action))
		return u.inner.CommitEntityWrite(ctx, write)
	})
}

var _ ports.UnitOfWork = (*TracedUnitOfWork)(nil)
