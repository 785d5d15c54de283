package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"agritrace/pkg/domain"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(engine *domain.RulesEngine, hooks ...domain.CommitHook) *Store {
	store := NewStore(engine, hooks...)
	store.SetNowFunc(func() time.Time { return fixedNow })
	return store
}

func seedChain(t *testing.T, store *Store) (Lot, Transformation, Logistics) {
	t.Helper()
	var lot Lot
	var tr Transformation
	var lg Logistics
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		lot, err = tx.CreateLot(Lot{Code: "LOTE-2024-001", AreaHectares: 2, HarvestDate: fixedNow.Add(-48 * time.Hour)})
		if err != nil {
			return err
		}
		tr, err = tx.CreateTransformation(Transformation{LotID: lot.ID, UnitCount: 10})
		if err != nil {
			return err
		}
		lg, err = tx.CreateLogistics(Logistics{TransformationID: tr.ID, GuideNumber: "GUIA-0001"})
		return err
	})
	if err != nil {
		t.Fatalf("seed chain: %v", err)
	}
	return lot, tr, lg
}

func TestCreateAppliesDefaults(t *testing.T) {
	store := newTestStore(nil)
	lot, _, lg := seedChain(t, store)

	if lot.ID == "" || lot.CreatedAt != fixedNow || lot.UpdatedAt != fixedNow {
		t.Fatalf("expected id and timestamps, got %+v", lot.Base)
	}
	if lot.ProductType != domain.DefaultProductType {
		t.Fatalf("expected default product type, got %q", lot.ProductType)
	}
	if !lot.HarvestDate.Equal(time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected harvest date truncated to the day, got %v", lot.HarvestDate)
	}
	if lg.State != domain.StateInTransit {
		t.Fatalf("expected default IN_TRANSIT state, got %s", lg.State)
	}
	if lg.TraceCode != nil {
		t.Fatalf("expected nil trace code")
	}
}

func TestUniquenessConstraints(t *testing.T) {
	store := newTestStore(nil)
	lot, tr, lg := seedChain(t, store)
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateLot(Lot{Code: lot.Code})
		return err
	})
	var dup domain.ErrDuplicate
	if !errors.As(err, &dup) || dup.Field != "code" {
		t.Fatalf("expected duplicate lot code error, got %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateLogistics(Logistics{TransformationID: tr.ID, GuideNumber: lg.GuideNumber})
		return err
	})
	if !errors.As(err, &dup) || dup.Field != "guide_number" {
		t.Fatalf("expected duplicate guide number error, got %v", err)
	}

	code := "TRZ-LOTE2024001-AAAAAAAA"
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateLogistics(lg.ID, func(l *Logistics) error {
			l.TraceCode = &code
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("assign code: %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateLogistics(Logistics{TransformationID: tr.ID, GuideNumber: "GUIA-0002", TraceCode: &code})
		return err
	})
	if !errors.As(err, &dup) || dup.Field != "trace_code" {
		t.Fatalf("expected duplicate trace code error, got %v", err)
	}
	if found, ok := store.GetLogistics(lg.ID); !ok || found.TraceCodeValue() != code {
		t.Fatalf("expected committed trace code, got %+v", found)
	}
}

func TestDanglingReferencesRefused(t *testing.T) {
	store := newTestStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateTransformation(Transformation{LotID: "missing"})
		return err
	})
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) || nf.Entity != domain.EntityLot {
		t.Fatalf("expected missing lot error, got %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateLogistics(Logistics{TransformationID: "missing", GuideNumber: "GUIA-1"})
		return err
	})
	if !errors.As(err, &nf) || nf.Entity != domain.EntityTransformation {
		t.Fatalf("expected missing transformation error, got %v", err)
	}
}

func TestDeleteLotCascades(t *testing.T) {
	store := newTestStore(nil)
	lot, tr, lg := seedChain(t, store)
	var changes []Change
	hook := hookFunc(func(_ context.Context, _ Transaction, c []Change) error {
		changes = c
		return nil
	})
	store.hooks = []domain.CommitHook{hook}

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteLot(lot.ID)
	}); err != nil {
		t.Fatalf("delete lot: %v", err)
	}
	if _, ok := store.GetTransformation(tr.ID); ok {
		t.Fatalf("expected transformation removed")
	}
	if _, ok := store.GetLogistics(lg.ID); ok {
		t.Fatalf("expected logistics removed")
	}
	if len(changes) != 3 || changes[0].Entity != domain.EntityLogistics || changes[2].Entity != domain.EntityLot {
		t.Fatalf("expected dependents deleted before lot, got %+v", changes)
	}
}

func TestRollbackOnErrorAndBlockingRule(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := newTestStore(engine)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateLot(Lot{Code: "BLOCKED"})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if len(store.ListLots()) != 0 {
		t.Fatalf("expected blocked transaction rolled back")
	}

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateLot(Lot{Code: "OK1"}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil || len(store.ListLots()) != 0 {
		t.Fatalf("expected aborted transaction rolled back, err=%v", err)
	}
}

func TestCommitHookMutationsAreVisibleToRules(t *testing.T) {
	engine := domain.NewRulesEngine()
	seen := &recordingRule{}
	engine.Register(seen)
	hook := hookFunc(func(_ context.Context, tx Transaction, changes []Change) error {
		for _, c := range changes {
			if c.Entity != domain.EntityLot || c.Action != domain.ActionCreate {
				continue
			}
			lot := c.After.(Lot)
			if _, err := tx.UpdateLot(lot.ID, func(l *Lot) error {
				l.Certifications = "hooked"
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	store := newTestStore(engine, hook)
	var created Lot
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateLot(Lot{Code: "HOOK1"})
		return err
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	got, _ := store.GetLot(created.ID)
	if got.Certifications != "hooked" {
		t.Fatalf("expected hook mutation committed")
	}
	if seen.changes != 2 {
		t.Fatalf("expected rules to observe hook change, saw %d", seen.changes)
	}
}

func TestHookErrorAborts(t *testing.T) {
	hook := hookFunc(func(context.Context, Transaction, []Change) error { return errors.New("nope") })
	store := newTestStore(nil, hook)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateLot(Lot{Code: "ABC"})
		return err
	})
	if err == nil || len(store.ListLots()) != 0 {
		t.Fatalf("expected hook failure to abort, err=%v", err)
	}
}

func TestCommitFuncFailureLeavesStateUntouched(t *testing.T) {
	store := newTestStore(nil)
	writeErr := errors.New("disk full")
	var written []Snapshot
	store.SetCommitFunc(func(_ context.Context, next Snapshot) error {
		if writeErr != nil {
			return writeErr
		}
		written = append(written, next)
		return nil
	})
	create := func() error {
		_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
			_, err := tx.CreateLot(Lot{Code: "LOTE-2024-009"})
			return err
		})
		return err
	}

	if err := create(); !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
	if len(store.ListLots()) != 0 {
		t.Fatalf("expected failed write to leave no lot behind")
	}

	writeErr = nil
	if err := create(); err != nil {
		t.Fatalf("retry after failed write: %v", err)
	}
	if len(store.ListLots()) != 1 || len(written) != 1 || len(written[0].Lots) != 1 {
		t.Fatalf("expected exactly one lot written, got %d in memory and %d snapshots", len(store.ListLots()), len(written))
	}
}

func TestCommitFuncSkippedOnBlockingRule(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := newTestStore(engine)
	calls := 0
	store.SetCommitFunc(func(context.Context, Snapshot) error {
		calls++
		return nil
	})
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateLot(Lot{Code: "BLOCKED"})
		return err
	})
	if err == nil || calls != 0 {
		t.Fatalf("expected blocked transaction to skip the write, err=%v calls=%d", err, calls)
	}
}

func TestAfterCommitSeesCommittedStateOnly(t *testing.T) {
	hook := hookFunc(func(_ context.Context, tx Transaction, changes []Change) error {
		for _, c := range changes {
			if c.Entity != domain.EntityLot || c.Action != domain.ActionCreate {
				continue
			}
			if _, err := tx.UpdateLot(c.After.(Lot).ID, func(l *Lot) error {
				l.Certifications = "hooked"
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	store := newTestStore(nil, hook)

	var committed Lot
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		created, err := tx.CreateLot(Lot{Code: "AFTER1"})
		if err != nil {
			return err
		}
		tx.AfterCommit(func(view TransactionView) {
			committed, _ = view.FindLot(created.ID)
		})
		return nil
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if committed.Certifications != "hooked" {
		t.Fatalf("expected after-commit read to include hook mutation, got %+v", committed)
	}

	called := false
	_, _ = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		tx.AfterCommit(func(TransactionView) { called = true })
		return errors.New("abort")
	})
	if called {
		t.Fatalf("expected after-commit callback skipped on rollback")
	}
}

func TestViewFindersAndSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(nil)
	lot, tr, lg := seedChain(t, store)
	code := "TRZ-X-12345678"
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateLogistics(lg.ID, func(l *Logistics) error {
			l.TraceCode = &code
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	err := store.View(context.Background(), func(v TransactionView) error {
		if !v.Now().Equal(fixedNow) {
			t.Fatalf("expected view reference instant")
		}
		if got, ok := v.FindLotByCode(lot.Code); !ok || got.ID != lot.ID {
			t.Fatalf("find lot by code failed")
		}
		if got, ok := v.FindLogisticsByTraceCode(code); !ok || got.ID != lg.ID {
			t.Fatalf("find by trace code failed")
		}
		if _, ok := v.FindLogisticsByTraceCode(""); ok {
			t.Fatalf("empty trace code must not match")
		}
		if ts := v.TransformationsForLot(lot.ID); len(ts) != 1 || ts[0].ID != tr.ID {
			t.Fatalf("unexpected transformations %+v", ts)
		}
		if ls := v.LogisticsForTransformation(tr.ID); len(ls) != 1 {
			t.Fatalf("unexpected logistics %+v", ls)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	snapshot := store.ExportState()
	restored := NewStore(nil)
	restored.ImportState(snapshot)
	got, ok := restored.GetLogistics(lg.ID)
	if !ok || got.TraceCodeValue() != code {
		t.Fatalf("expected restored logistics with code, got %+v", got)
	}
	*snapshot.Logistics[lg.ID].TraceCode = "mutated"
	if again, _ := restored.GetLogistics(lg.ID); again.TraceCodeValue() != code {
		t.Fatalf("expected import to deep copy trace code")
	}
}

func TestListOrdering(t *testing.T) {
	store := newTestStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		for _, l := range []Lot{
			{Code: "B01", HarvestDate: fixedNow.Add(-72 * time.Hour)},
			{Code: "A01", HarvestDate: fixedNow.Add(-24 * time.Hour)},
			{Code: "C01", HarvestDate: fixedNow.Add(-24 * time.Hour)},
		} {
			if _, err := tx.CreateLot(l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	lots := store.ListLots()
	if lots[0].Code != "A01" || lots[1].Code != "C01" || lots[2].Code != "B01" {
		t.Fatalf("unexpected ordering: %s %s %s", lots[0].Code, lots[1].Code, lots[2].Code)
	}
}

func TestUpdatePreservesIdentity(t *testing.T) {
	store := newTestStore(nil)
	lot, _, _ := seedChain(t, store)
	later := fixedNow.Add(time.Hour)
	store.SetNowFunc(func() time.Time { return later })
	var updated Lot
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateLot(lot.ID, func(l *Lot) error {
			l.ID = "hijack"
			l.Responsible = "Ana"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != lot.ID || !updated.CreatedAt.Equal(fixedNow) || !updated.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected identity/timestamps %+v", updated.Base)
	}
}

type hookFunc func(ctx context.Context, tx Transaction, changes []Change) error

func (hookFunc) Name() string { return "test_hook" }

func (f hookFunc) BeforeCommit(ctx context.Context, tx Transaction, changes []Change) error {
	return f(ctx, tx, changes)
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block_all" }

func (blockingRule) Evaluate(context.Context, domain.RuleView, []Change) (Result, error) {
	return Result{Violations: []domain.ValidationFailure{{Rule: "block_all", Severity: domain.SeverityBlock, Message: "blocked"}}}, nil
}

type recordingRule struct{ changes int }

func (*recordingRule) Name() string { return "recording" }

func (r *recordingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	r.changes = len(changes)
	return Result{}, nil
}
