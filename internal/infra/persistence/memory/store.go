// Package memory provides an in-memory implementation of the traceability
// persistence store used for tests, ephemeral environments and as the
// transactional engine behind the durable stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"agritrace/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Lot aliases domain.Lot for in-memory persistence operations.
	Lot = domain.Lot
	// Transformation aliases domain.Transformation.
	Transformation = domain.Transformation
	// Logistics aliases domain.Logistics.
	Logistics = domain.Logistics
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	lots            map[string]Lot
	transformations map[string]Transformation
	logistics       map[string]Logistics
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Lots            map[string]Lot            `json:"lots"`
	Transformations map[string]Transformation `json:"transformations"`
	Logistics       map[string]Logistics      `json:"logistics"`
}

func newMemoryState() memoryState {
	return memoryState{
		lots:            make(map[string]Lot),
		transformations: make(map[string]Transformation),
		logistics:       make(map[string]Logistics),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.lots {
		cloned.lots[k] = cloneLot(v)
	}
	for k, v := range s.transformations {
		cloned.transformations[k] = cloneTransformation(v)
	}
	for k, v := range s.logistics {
		cloned.logistics[k] = cloneLogistics(v)
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Lots:            cloned.lots,
		Transformations: cloned.transformations,
		Logistics:       cloned.logistics,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Lots {
		state.lots[k] = cloneLot(v)
	}
	for k, v := range s.Transformations {
		state.transformations[k] = cloneTransformation(v)
	}
	for k, v := range s.Logistics {
		v = normalizeLogistics(v)
		state.logistics[k] = cloneLogistics(v)
	}
	return state
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneLot(l Lot) Lot {
	l.Latitude = clonePtr(l.Latitude)
	l.Longitude = clonePtr(l.Longitude)
	return l
}

func cloneTransformation(t Transformation) Transformation {
	t.QualityNotes = clonePtr(t.QualityNotes)
	return t
}

func cloneLogistics(l Logistics) Logistics {
	l.TraceCode = clonePtr(l.TraceCode)
	return l
}

func normalizeLogistics(l Logistics) Logistics {
	if l.State == "" {
		l.State = domain.StateInTransit
	}
	if l.TraceCode != nil && strings.TrimSpace(*l.TraceCode) == "" {
		l.TraceCode = nil
	}
	return l
}

// Store is an in-memory implementation of domain.PersistentStore. Writers are
// serialized by a single mutex, so check-then-act sequences executed inside a
// transaction (including commit hooks) are atomic.
type Store struct {
	mu       sync.RWMutex
	state    memoryState
	engine   *RulesEngine
	hooks    []domain.CommitHook
	nowFn    func() time.Time
	commitFn CommitFunc
}

// CommitFunc receives the state a transaction is about to publish. It runs
// under the writer lock after rule evaluation; an error discards the
// transaction.
type CommitFunc func(ctx context.Context, next Snapshot) error

// NewStore constructs an in-memory store backed by the provided rules engine.
// Hooks run in order inside every transaction before rule evaluation.
func NewStore(engine *RulesEngine, hooks ...domain.CommitHook) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		hooks:  append([]domain.CommitHook(nil), hooks...),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetCommitFunc installs fn as the last step of every commit. Nil removes it.
func (s *Store) SetCommitFunc(fn CommitFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitFn = fn
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the transaction clock. Nil restores wall-clock UTC.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func() time.Time { return time.Now().UTC() }
	}
	s.nowFn = fn
}

type transaction struct {
	transactionView
	store       *Store
	state       memoryState
	changes     []Change
	now         time.Time
	afterCommit []func(TransactionView)
}

type transactionView struct {
	state *memoryState
	now   time.Time
}

func newTransactionView(state *memoryState, now time.Time) transactionView {
	return transactionView{state: state, now: now}
}

// Now returns the reference instant of the snapshot.
func (v transactionView) Now() time.Time { return v.now }

// ListLots returns lots ordered by harvest date (newest first) then code.
func (v transactionView) ListLots() []Lot {
	return sortedLots(v.state.lots)
}

// ListTransformations returns transformations ordered newest first.
func (v transactionView) ListTransformations() []Transformation {
	return sortedTransformations(v.state.transformations, nil)
}

// ListLogistics returns logistics records ordered by delivery time, newest first.
func (v transactionView) ListLogistics() []Logistics {
	return sortedLogistics(v.state.logistics, nil)
}

func (v transactionView) FindLot(id string) (Lot, bool) {
	l, ok := v.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

func (v transactionView) FindLotByCode(code string) (Lot, bool) {
	for _, l := range v.state.lots {
		if l.Code == code {
			return cloneLot(l), true
		}
	}
	return Lot{}, false
}

func (v transactionView) FindTransformation(id string) (Transformation, bool) {
	t, ok := v.state.transformations[id]
	if !ok {
		return Transformation{}, false
	}
	return cloneTransformation(t), true
}

func (v transactionView) FindLogistics(id string) (Logistics, bool) {
	l, ok := v.state.logistics[id]
	if !ok {
		return Logistics{}, false
	}
	return cloneLogistics(l), true
}

func (v transactionView) FindLogisticsByTraceCode(code string) (Logistics, bool) {
	if strings.TrimSpace(code) == "" {
		return Logistics{}, false
	}
	for _, l := range v.state.logistics {
		if l.TraceCodeValue() == code {
			return cloneLogistics(l), true
		}
	}
	return Logistics{}, false
}

// TransformationsForLot returns the transformations owned by lotID.
func (v transactionView) TransformationsForLot(lotID string) []Transformation {
	return sortedTransformations(v.state.transformations, func(t Transformation) bool { return t.LotID == lotID })
}

// LogisticsForTransformation returns the logistics records owned by transformationID.
func (v transactionView) LogisticsForTransformation(transformationID string) []Logistics {
	return sortedLogistics(v.state.logistics, func(l Logistics) bool { return l.TransformationID == transformationID })
}

func sortedLots(lots map[string]Lot) []Lot {
	out := make([]Lot, 0, len(lots))
	for _, l := range lots {
		out = append(out, cloneLot(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].HarvestDate.Equal(out[j].HarvestDate) {
			return out[i].HarvestDate.After(out[j].HarvestDate)
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func sortedTransformations(items map[string]Transformation, keep func(Transformation) bool) []Transformation {
	out := make([]Transformation, 0, len(items))
	for _, t := range items {
		if keep != nil && !keep(t) {
			continue
		}
		out = append(out, cloneTransformation(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedLogistics(items map[string]Logistics, keep func(Logistics) bool) []Logistics {
	out := make([]Logistics, 0, len(items))
	for _, l := range items {
		if keep != nil && !keep(l) {
			continue
		}
		out = append(out, cloneLogistics(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DeliveredAt.Equal(out[j].DeliveredAt) {
			return out[i].DeliveredAt.After(out[j].DeliveredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Commit hooks run after fn and before the rules engine, then the commit func.
// Any error or blocking violation discards the copy.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	tx.transactionView = newTransactionView(&tx.state, tx.now)

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	for _, hook := range s.hooks {
		changes := append([]Change(nil), tx.changes...)
		if err := hook.BeforeCommit(ctx, tx, changes); err != nil {
			return Result{}, fmt.Errorf("commit hook %s: %w", hook.Name(), err)
		}
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state, tx.now)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.commitFn != nil {
		if err := s.commitFn(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return Result{}, err
		}
	}

	s.state = tx.state
	if len(tx.afterCommit) > 0 {
		view := newTransactionView(&s.state, tx.now)
		for _, fn := range tx.afterCommit {
			fn(view)
		}
	}
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	now := s.nowFn()
	s.mu.RUnlock()

	return fn(newTransactionView(&snapshot, now))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// AfterCommit registers fn to read the published state once the transaction
// commits, before the writer lock is released.
func (tx *transaction) AfterCommit(fn func(TransactionView)) {
	if fn != nil {
		tx.afterCommit = append(tx.afterCommit, fn)
	}
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state, tx.now)
}

func (tx *transaction) lotCodeTaken(code, exceptID string) bool {
	for id, l := range tx.state.lots {
		if id != exceptID && l.Code == code {
			return true
		}
	}
	return false
}

func (tx *transaction) guideNumberTaken(guide, exceptID string) bool {
	for id, l := range tx.state.logistics {
		if id != exceptID && l.GuideNumber == guide {
			return true
		}
	}
	return false
}

func (tx *transaction) traceCodeTaken(code *string, exceptID string) bool {
	if code == nil {
		return false
	}
	for id, l := range tx.state.logistics {
		if id != exceptID && l.TraceCode != nil && *l.TraceCode == *code {
			return true
		}
	}
	return false
}

// CreateLot stores a new lot within the transaction.
func (tx *transaction) CreateLot(l Lot) (Lot, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.lots[l.ID]; exists {
		return Lot{}, fmt.Errorf("lot %q already exists", l.ID)
	}
	if tx.lotCodeTaken(l.Code, "") {
		return Lot{}, domain.ErrDuplicate{Entity: domain.EntityLot, Field: "code", Value: l.Code}
	}
	if strings.TrimSpace(l.ProductType) == "" {
		l.ProductType = domain.DefaultProductType
	}
	l.HarvestDate = domain.CivilDate(l.HarvestDate)
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.lots[l.ID] = cloneLot(l)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionCreate, After: cloneLot(l)})
	return cloneLot(l), nil
}

// UpdateLot mutates a lot using the provided mutator function.
func (tx *transaction) UpdateLot(id string, mutator func(*Lot) error) (Lot, error) {
	current, ok := tx.state.lots[id]
	if !ok {
		return Lot{}, domain.ErrNotFound{Entity: domain.EntityLot, ID: id}
	}
	before := cloneLot(current)
	if err := mutator(&current); err != nil {
		return Lot{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.HarvestDate = domain.CivilDate(current.HarvestDate)
	if tx.lotCodeTaken(current.Code, id) {
		return Lot{}, domain.ErrDuplicate{Entity: domain.EntityLot, Field: "code", Value: current.Code}
	}
	current.UpdatedAt = tx.now
	tx.state.lots[id] = cloneLot(current)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionUpdate, Before: before, After: cloneLot(current)})
	return cloneLot(current), nil
}

// DeleteLot removes a lot and cascades to its transformations and their logistics.
func (tx *transaction) DeleteLot(id string) error {
	current, ok := tx.state.lots[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityLot, ID: id}
	}
	for _, t := range tx.TransformationsForLot(id) {
		if err := tx.DeleteTransformation(t.ID); err != nil {
			return err
		}
	}
	delete(tx.state.lots, id)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionDelete, Before: cloneLot(current)})
	return nil
}

// CreateTransformation stores a new transformation owned by an existing lot.
func (tx *transaction) CreateTransformation(t Transformation) (Transformation, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.transformations[t.ID]; exists {
		return Transformation{}, fmt.Errorf("transformation %q already exists", t.ID)
	}
	if _, ok := tx.state.lots[t.LotID]; !ok {
		return Transformation{}, domain.ErrNotFound{Entity: domain.EntityLot, ID: t.LotID}
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.transformations[t.ID] = cloneTransformation(t)
	tx.recordChange(Change{Entity: domain.EntityTransformation, Action: domain.ActionCreate, After: cloneTransformation(t)})
	return cloneTransformation(t), nil
}

// UpdateTransformation mutates a transformation using the provided mutator function.
func (tx *transaction) UpdateTransformation(id string, mutator func(*Transformation) error) (Transformation, error) {
	current, ok := tx.state.transformations[id]
	if !ok {
		return Transformation{}, domain.ErrNotFound{Entity: domain.EntityTransformation, ID: id}
	}
	before := cloneTransformation(current)
	if err := mutator(&current); err != nil {
		return Transformation{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if _, ok := tx.state.lots[current.LotID]; !ok {
		return Transformation{}, domain.ErrNotFound{Entity: domain.EntityLot, ID: current.LotID}
	}
	current.UpdatedAt = tx.now
	tx.state.transformations[id] = cloneTransformation(current)
	tx.recordChange(Change{Entity: domain.EntityTransformation, Action: domain.ActionUpdate, Before: before, After: cloneTransformation(current)})
	return cloneTransformation(current), nil
}

// DeleteTransformation removes a transformation and cascades to its logistics.
func (tx *transaction) DeleteTransformation(id string) error {
	current, ok := tx.state.transformations[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityTransformation, ID: id}
	}
	for _, l := range tx.LogisticsForTransformation(id) {
		if err := tx.DeleteLogistics(l.ID); err != nil {
			return err
		}
	}
	delete(tx.state.transformations, id)
	tx.recordChange(Change{Entity: domain.EntityTransformation, Action: domain.ActionDelete, Before: cloneTransformation(current)})
	return nil
}

// CreateLogistics stores a new logistics record owned by an existing transformation.
func (tx *transaction) CreateLogistics(l Logistics) (Logistics, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.logistics[l.ID]; exists {
		return Logistics{}, fmt.Errorf("logistics %q already exists", l.ID)
	}
	if _, ok := tx.state.transformations[l.TransformationID]; !ok {
		return Logistics{}, domain.ErrNotFound{Entity: domain.EntityTransformation, ID: l.TransformationID}
	}
	l = normalizeLogistics(l)
	if err := tx.checkLogisticsUnique(l, ""); err != nil {
		return Logistics{}, err
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.logistics[l.ID] = cloneLogistics(l)
	tx.recordChange(Change{Entity: domain.EntityLogistics, Action: domain.ActionCreate, After: cloneLogistics(l)})
	return cloneLogistics(l), nil
}

// UpdateLogistics mutates a logistics record using the provided mutator function.
func (tx *transaction) UpdateLogistics(id string, mutator func(*Logistics) error) (Logistics, error) {
	current, ok := tx.state.logistics[id]
	if !ok {
		return Logistics{}, domain.ErrNotFound{Entity: domain.EntityLogistics, ID: id}
	}
	before := cloneLogistics(current)
	if err := mutator(&current); err != nil {
		return Logistics{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if _, ok := tx.state.transformations[current.TransformationID]; !ok {
		return Logistics{}, domain.ErrNotFound{Entity: domain.EntityTransformation, ID: current.TransformationID}
	}
	current = normalizeLogistics(current)
	if err := tx.checkLogisticsUnique(current, id); err != nil {
		return Logistics{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.logistics[id] = cloneLogistics(current)
	tx.recordChange(Change{Entity: domain.EntityLogistics, Action: domain.ActionUpdate, Before: before, After: cloneLogistics(current)})
	return cloneLogistics(current), nil
}

// DeleteLogistics removes a logistics record from the transaction state.
func (tx *transaction) DeleteLogistics(id string) error {
	current, ok := tx.state.logistics[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityLogistics, ID: id}
	}
	delete(tx.state.logistics, id)
	tx.recordChange(Change{Entity: domain.EntityLogistics, Action: domain.ActionDelete, Before: cloneLogistics(current)})
	return nil
}

func (tx *transaction) checkLogisticsUnique(l Logistics, exceptID string) error {
	if tx.guideNumberTaken(l.GuideNumber, exceptID) {
		return domain.ErrDuplicate{Entity: domain.EntityLogistics, Field: "guide_number", Value: l.GuideNumber}
	}
	if tx.traceCodeTaken(l.TraceCode, exceptID) {
		return domain.ErrDuplicate{Entity: domain.EntityLogistics, Field: "trace_code", Value: *l.TraceCode}
	}
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetLot retrieves a lot by ID from committed state.
func (s *Store) GetLot(id string) (Lot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

// ListLots returns all lots from committed state.
func (s *Store) ListLots() []Lot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedLots(s.state.lots)
}

// GetTransformation retrieves a transformation by ID from committed state.
func (s *Store) GetTransformation(id string) (Transformation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.transformations[id]
	if !ok {
		return Transformation{}, false
	}
	return cloneTransformation(t), true
}

// ListTransformations returns all transformations from committed state.
func (s *Store) ListTransformations() []Transformation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedTransformations(s.state.transformations, nil)
}

// GetLogistics retrieves a logistics record by ID from committed state.
func (s *Store) GetLogistics(id string) (Logistics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.logistics[id]
	if !ok {
		return Logistics{}, false
	}
	return cloneLogistics(l), true
}

// ListLogistics returns all logistics records from committed state.
func (s *Store) ListLogistics() []Logistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedLogistics(s.state.logistics, nil)
}
