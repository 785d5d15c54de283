package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	TransactionView
	Snapshot() TransactionView
	CreateLot(Lot) (Lot, error)
	UpdateLot(id string, mutator func(*Lot) error) (Lot, error)
	DeleteLot(id string) error
	CreateTransformation(Transformation) (Transformation, error)
	UpdateTransformation(id string, mutator func(*Transformation) error) (Transformation, error)
	DeleteTransformation(id string) error
	CreateLogistics(Logistics) (Logistics, error)
	UpdateLogistics(id string, mutator func(*Logistics) error) (Logistics, error)
	DeleteLogistics(id string) error
	// AfterCommit registers fn to run against the committed state, still
	// inside the writer's critical section. It is not called on rollback.
	AfterCommit(fn func(TransactionView))
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
}

// CommitHook runs inside a transaction after the caller's mutations and before
// rule evaluation. Hooks may apply derived state transitions through tx; any
// error aborts the transaction.
type CommitHook interface {
	Name() string
	BeforeCommit(ctx context.Context, tx Transaction, changes []Change) error
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetLot(id string) (Lot, bool)
	ListLots() []Lot
	GetTransformation(id string) (Transformation, bool)
	ListTransformations() []Transformation
	GetLogistics(id string) (Logistics, bool)
	ListLogistics() []Logistics
}
