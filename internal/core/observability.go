package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"officeflow/pkg/domain"
)

// Clock supplies the wall time used for event stamps and Dak/document years.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now returns the function result in UTC; a nil func uses time.Now.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// AuditStatus captures the outcome of an operation.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one completed service operation.
type AuditEntry struct {
	Operation  string
	Entity     domain.EntityType
	EntityID   string
	Department string
	Actor      string
	Status     AuditStatus
	Error      string
	Duration   time.Duration
	Timestamp  time.Time
}

// AuditRecorder receives an entry after every service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation latency and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan ends a traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// operation names, also used as metric labels.
const (
	opCreateDocument   = "create_document"
	opMoveDocument     = "move_document"
	opEditDocument     = "edit_document"
	opPullDocument     = "pull_document"
	opAttachFile       = "attach_file"
	opDetachFile       = "detach_file"
	opRegisterDak      = "register_dak"
	opConvertDak       = "convert_dak"
	opCreateContractor = "create_contractor"
	opUpdateContractor = "update_contractor"
	opDeleteContractor = "delete_contractor"
	opCreateDepartment = "create_department"
	opSaveCollection   = "save_collection"
)

var operationEntities = map[string]domain.EntityType{
	opCreateDocument:   domain.EntityDocument,
	opMoveDocument:     domain.EntityDocument,
	opEditDocument:     domain.EntityDocument,
	opPullDocument:     domain.EntityDocument,
	opAttachFile:       domain.EntityAttachment,
	opDetachFile:       domain.EntityAttachment,
	opRegisterDak:      domain.EntityDakEntry,
	opConvertDak:       domain.EntityDocument,
	opCreateContractor: domain.EntityContractor,
	opUpdateContractor: domain.EntityContractor,
	opDeleteContractor: domain.EntityContractor,
	opCreateDepartment: domain.EntityDepartment,
	opSaveCollection:   domain.EntityCollection,
}

// call identifies the operation being observed.
type call struct {
	op     string
	dept   string
	actor  string
	entity string
}

// observe wraps fn with tracing, metrics, audit and logging. fn returns the id
// of the entity it touched, which lands in the audit entry.
func (s *Service) observe(ctx context.Context, c call, fn func(ctx context.Context) (string, error)) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, c.op)
	id, err := fn(ctx)
	span.End(err)
	duration := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, c.op, err == nil, duration)
	if id == "" {
		id = c.entity
	}
	if err != nil {
		s.recordAudit(ctx, c, id, AuditStatusError, err, duration)
		s.logger.Info("operation failed", zap.String("operation", c.op), zap.String("department", c.dept), zap.String("actor", c.actor), zap.String("id", id), zap.Error(err))
		return err
	}
	s.recordAudit(ctx, c, id, AuditStatusSuccess, nil, duration)
	s.logger.Info("operation completed", zap.String("operation", c.op), zap.String("department", c.dept), zap.String("actor", c.actor), zap.String("id", id), zap.Duration("duration", duration))
	return nil
}

func (s *Service) recordAudit(ctx context.Context, c call, id string, status AuditStatus, err error, duration time.Duration) {
	entity, ok := operationEntities[c.op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation:  c.op,
		Entity:     entity,
		EntityID:   id,
		Department: c.dept,
		Actor:      c.actor,
		Status:     status,
		Duration:   duration,
		Timestamp:  s.clock.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}
