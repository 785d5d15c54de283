package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agritrace/internal/blob"
	"agritrace/internal/infra/persistence/memory"
	"agritrace/internal/validation"
	"agritrace/pkg/domain"
)

// Service exposes the transactional traceability operations. Every write runs
// the stage validators and, for logistics, the strict chain check inside the
// store transaction; the store's commit hooks and rules engine then assign
// trace codes and re-check invariants before the write becomes visible.
type Service struct {
	store   PersistentStore
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
	blobs   blob.Store
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return &Service{
		store:   store,
		logger:  options.logger,
		audit:   options.audit,
		metrics: options.metrics,
		tracer:  options.tracer,
		clock:   options.clock,
		blobs:   options.blobs,
	}
}

// NewInMemoryService creates a service over an in-memory store with the given
// rules engine and the default commit hooks.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine, DefaultCommitHooks()...), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}

// run wraps an operation with tracing, metrics, audit and logging.
func (s *Service) run(ctx context.Context, operation string, entity EntityType, action Action, fn func(context.Context) (string, error)) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	entityID, err := fn(ctx)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, elapsed)

	entry := AuditEntry{
		Operation: operation,
		Entity:    entity,
		Action:    action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  elapsed,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.observeViolations(ctx, err)
		if isExpected(err) {
			s.logger.Warn("operation rejected", "operation", operation, "entity_id", entityID, "error", err)
		} else {
			s.logger.Error("operation failed", "operation", operation, "entity_id", entityID, "error", err)
		}
	} else {
		s.logger.Debug("operation completed", "operation", operation, "entity_id", entityID, "duration", elapsed)
	}
	s.audit.Record(ctx, entry)
	return err
}

func (s *Service) observeViolations(ctx context.Context, err error) {
	recorder, ok := s.metrics.(DomainMetricsRecorder)
	if !ok {
		return
	}
	var blocked RuleViolationError
	if errors.As(err, &blocked) {
		for _, v := range blocked.Result.Violations {
			recorder.ViolationObserved(ctx, v.Rule)
		}
		return
	}
	if vf, ok := domain.AsValidationFailure(err); ok {
		recorder.ViolationObserved(ctx, vf.Rule)
	}
}

// isExpected reports whether err is a normal, caller-facing rejection.
func isExpected(err error) bool {
	var blocked RuleViolationError
	var notFound ErrNotFound
	var dup ErrDuplicate
	if _, ok := domain.AsValidationFailure(err); ok {
		return true
	}
	return errors.As(err, &blocked) || errors.As(err, &notFound) || errors.As(err, &dup)
}

// CreateLot validates and persists a new cultivation lot.
func (s *Service) CreateLot(ctx context.Context, lot Lot) (Lot, Result, error) {
	var created Lot
	var res Result
	err := s.run(ctx, "create_lot", EntityLot, ActionCreate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := validation.Lot(lot, tx.Now()); err != nil {
				return err
			}
			var err error
			created, err = tx.CreateLot(lot)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateLot applies mutator to a lot and re-validates it.
func (s *Service) UpdateLot(ctx context.Context, id string, mutator func(*Lot) error) (Lot, Result, error) {
	var updated Lot
	var res Result
	err := s.run(ctx, "update_lot", EntityLot, ActionUpdate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindLot(id)
			if !ok {
				return ErrNotFound{Entity: EntityLot, ID: id}
			}
			if err := mutator(&current); err != nil {
				return err
			}
			current.ID = id
			if err := validation.Lot(current, tx.Now()); err != nil {
				return err
			}
			var err error
			updated, err = tx.UpdateLot(id, func(l *Lot) error {
				*l = current
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// DeleteLot removes a lot together with its transformations and logistics.
func (s *Service) DeleteLot(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_lot", EntityLot, ActionDelete, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteLot(id)
		})
		return id, err
	})
	return res, err
}

// CreateTransformation validates and persists a transformation of an existing lot.
func (s *Service) CreateTransformation(ctx context.Context, t Transformation) (Transformation, Result, error) {
	var created Transformation
	var res Result
	err := s.run(ctx, "create_transformation", EntityTransformation, ActionCreate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindLot(t.LotID); !ok {
				return ErrNotFound{Entity: EntityLot, ID: t.LotID}
			}
			if err := validation.Transformation(t); err != nil {
				return err
			}
			var err error
			created, err = tx.CreateTransformation(t)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateTransformation applies mutator to a transformation and re-validates it.
func (s *Service) UpdateTransformation(ctx context.Context, id string, mutator func(*Transformation) error) (Transformation, Result, error) {
	var updated Transformation
	var res Result
	err := s.run(ctx, "update_transformation", EntityTransformation, ActionUpdate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindTransformation(id)
			if !ok {
				return ErrNotFound{Entity: EntityTransformation, ID: id}
			}
			if err := mutator(&current); err != nil {
				return err
			}
			current.ID = id
			if err := validation.Transformation(current); err != nil {
				return err
			}
			var err error
			updated, err = tx.UpdateTransformation(id, func(t *Transformation) error {
				*t = current
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// DeleteTransformation removes a transformation and its logistics.
func (s *Service) DeleteTransformation(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_transformation", EntityTransformation, ActionDelete, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteTransformation(id)
		})
		return id, err
	})
	return res, err
}

// checkLogistics runs the stage validators and the strict chain check for a
// candidate logistics record against the chain stored in tx.
func checkLogistics(tx Transaction, candidate Logistics) error {
	if err := validation.Logistics(candidate); err != nil {
		return err
	}
	transformation, ok := tx.FindTransformation(candidate.TransformationID)
	if !ok {
		return ErrNotFound{Entity: EntityTransformation, ID: candidate.TransformationID}
	}
	lot, ok := tx.FindLot(transformation.LotID)
	if !ok {
		return ErrNotFound{Entity: EntityLot, ID: transformation.LotID}
	}
	return ValidateChain(lot, transformation, candidate)
}

// CreateLogistics validates a logistics record, certifies its chain in strict
// mode and persists it. A record created as DELIVERED receives its trace code
// in the same commit; any code supplied by the caller is discarded.
func (s *Service) CreateLogistics(ctx context.Context, l Logistics) (Logistics, Result, error) {
	var created Logistics
	var res Result
	if l.State == "" {
		l.State = domain.StateInTransit
	}
	l.TraceCode = nil
	err := s.run(ctx, "create_logistics", EntityLogistics, ActionCreate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := checkLogistics(tx, l); err != nil {
				return err
			}
			inserted, err := tx.CreateLogistics(l)
			if err != nil {
				return err
			}
			created = inserted
			tx.AfterCommit(func(view TransactionView) {
				if committed, ok := view.FindLogistics(inserted.ID); ok {
					created = committed
				}
			})
			return nil
		})
		return created.ID, err
	})
	if err == nil && created.HasTraceCode() {
		s.traceCodeAssigned(ctx, nil, created)
	}
	return created, res, err
}

// UpdateLogistics applies mutator to a logistics record (including state
// changes), re-certifies its chain and persists it. The trace code assignor runs
// in the same commit.
func (s *Service) UpdateLogistics(ctx context.Context, id string, mutator func(*Logistics) error) (Logistics, Result, error) {
	var before, updated Logistics
	var res Result
	err := s.run(ctx, "update_logistics", EntityLogistics, ActionUpdate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindLogistics(id)
			if !ok {
				return ErrNotFound{Entity: EntityLogistics, ID: id}
			}
			before = current
			candidate := current
			if current.TraceCode != nil {
				code := *current.TraceCode
				candidate.TraceCode = &code
			}
			if err := mutator(&candidate); err != nil {
				return err
			}
			// codes are only ever issued by the assignor
			if !current.HasTraceCode() {
				candidate.TraceCode = nil
			}
			candidate.ID = id
			if err := checkLogistics(tx, candidate); err != nil {
				return err
			}
			var err error
			updated, err = tx.UpdateLogistics(id, func(l *Logistics) error {
				*l = candidate
				return nil
			})
			if err != nil {
				return err
			}
			tx.AfterCommit(func(view TransactionView) {
				if committed, ok := view.FindLogistics(id); ok {
					updated = committed
				}
			})
			return nil
		})
		return id, err
	})
	if err != nil {
		return updated, res, err
	}
	if before.State != updated.State {
		s.recordAudit(ctx, AuditEntry{
			Operation:   "update_logistics_state",
			Entity:      EntityLogistics,
			Action:      ActionUpdate,
			EntityID:    id,
			Field:       "state",
			OldValue:    string(before.State),
			NewValue:    string(updated.State),
			Description: fmt.Sprintf("logistics %s moved from %s to %s", updated.GuideNumber, before.State, updated.State),
		})
	}
	if !before.HasTraceCode() && updated.HasTraceCode() {
		s.traceCodeAssigned(ctx, &before, updated)
	}
	return updated, res, err
}

// DeleteLogistics removes a logistics record.
func (s *Service) DeleteLogistics(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_logistics", EntityLogistics, ActionDelete, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteLogistics(id)
		})
		return id, err
	})
	return res, err
}

func (s *Service) traceCodeAssigned(ctx context.Context, before *Logistics, after Logistics) {
	old := ""
	if before != nil {
		old = before.TraceCodeValue()
	}
	s.logger.Info("trace code assigned", "logistics_id", after.ID, "guide_number", after.GuideNumber, "trace_code", after.TraceCodeValue())
	if recorder, ok := s.metrics.(DomainMetricsRecorder); ok {
		recorder.TraceCodeAssigned(ctx)
	}
	s.recordAudit(ctx, AuditEntry{
		Operation:   "assign_trace_code",
		Entity:      EntityLogistics,
		Action:      ActionUpdate,
		EntityID:    after.ID,
		Field:       "trace_code",
		OldValue:    old,
		NewValue:    after.TraceCodeValue(),
		Description: fmt.Sprintf("trace code assigned on delivery of %s", after.GuideNumber),
	})
}

func (s *Service) recordAudit(ctx context.Context, entry AuditEntry) {
	if entry.Status == "" {
		entry.Status = AuditStatusSuccess
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	s.audit.Record(ctx, entry)
}

// GetLot returns a committed lot.
func (s *Service) GetLot(id string) (Lot, bool) { return s.store.GetLot(id) }

// ListLots returns committed lots ordered by harvest date, newest first.
func (s *Service) ListLots() []Lot { return s.store.ListLots() }

// GetTransformation returns a committed transformation.
func (s *Service) GetTransformation(id string) (Transformation, bool) {
	return s.store.GetTransformation(id)
}

// ListTransformations returns committed transformations, newest first.
func (s *Service) ListTransformations() []Transformation { return s.store.ListTransformations() }

// GetLogistics returns a committed logistics record.
func (s *Service) GetLogistics(id string) (Logistics, bool) { return s.store.GetLogistics(id) }

// ListLogistics returns committed logistics records, latest delivery first.
func (s *Service) ListLogistics() []Logistics { return s.store.ListLogistics() }
