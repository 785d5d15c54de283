package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"agritrace/pkg/domain"

	"github.com/google/uuid"
)

// TraceCodePrefix starts every traceability code.
const TraceCodePrefix = "TRZ-"

// DefaultTraceCodeAttempts bounds suffix regeneration on code collisions.
const DefaultTraceCodeAttempts = 3

var (
	suffixPattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)
	// TraceCodePattern matches a well-formed traceability code.
	TraceCodePattern = regexp.MustCompile(`^TRZ-[^-\s]+-[A-Z0-9]{8}$`)

	// ErrTraceCodeConflict is returned when every generated suffix collided
	// with an existing code.
	ErrTraceCodeConflict = errors.New("trace code conflict")
)

// CodeSource yields candidate 8-character suffixes.
type CodeSource func() string

// RandomCodeSuffix returns the first eight hex characters of a random UUID,
// upper-cased.
func RandomCodeSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// StripLotCode removes separators ('-', '_', '/', '.' and whitespace) from a lot code.
func StripLotCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '/', '.', ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, code)
}

// FormatTraceCode builds "TRZ-<stripped lot code>-<suffix>".
func FormatTraceCode(lotCode, suffix string) string {
	return TraceCodePrefix + StripLotCode(lotCode) + "-" + suffix
}

// TraceCodeAssignor is the state transition that assigns a traceability code
// when a logistics record is DELIVERED and has none yet.
type TraceCodeAssignor struct {
	source CodeSource
}

// NewTraceCodeAssignor returns an assignor drawing suffixes from source
// (RandomCodeSuffix when nil).
func NewTraceCodeAssignor(source CodeSource) TraceCodeAssignor {
	if source == nil {
		source = RandomCodeSuffix
	}
	return TraceCodeAssignor{source: source}
}

// Apply transitions after given the previously stored before (nil on create).
// A code already held by before is carried forward when after cleared it. A new
// code is assigned only when after is DELIVERED and holds no code; the return
// value reports whether that happened.
func (a TraceCodeAssignor) Apply(before, after *Logistics, lotCode string) (bool, error) {
	if after == nil {
		return false, nil
	}
	if before != nil && before.HasTraceCode() && !after.HasTraceCode() {
		code := before.TraceCodeValue()
		after.TraceCode = &code
	}
	if after.State != domain.StateDelivered || after.HasTraceCode() {
		return false, nil
	}
	if StripLotCode(lotCode) == "" {
		return false, fmt.Errorf("cannot derive trace code from lot code %q", lotCode)
	}
	source := a.source
	if source == nil {
		source = RandomCodeSuffix
	}
	suffix := strings.ToUpper(source())
	if !suffixPattern.MatchString(suffix) {
		return false, fmt.Errorf("code source returned invalid suffix %q", suffix)
	}
	code := FormatTraceCode(lotCode, suffix)
	after.TraceCode = &code
	return true, nil
}

// TraceCodeHook invokes a TraceCodeAssignor inside the store transaction that
// records a logistics write, so DELIVERED and the code commit together.
type TraceCodeHook struct {
	assignor TraceCodeAssignor
	attempts int
}

var _ domain.CommitHook = (*TraceCodeHook)(nil)

// NewTraceCodeHook wires assignor as a commit hook.
func NewTraceCodeHook(assignor TraceCodeAssignor) *TraceCodeHook {
	return &TraceCodeHook{assignor: assignor, attempts: DefaultTraceCodeAttempts}
}

// DefaultCommitHooks returns the hooks every store is opened with.
func DefaultCommitHooks() []domain.CommitHook {
	return []domain.CommitHook{NewTraceCodeHook(NewTraceCodeAssignor(nil))}
}

func (*TraceCodeHook) Name() string { return "trace_code_assignment" }

// BeforeCommit applies the transition to every logistics record written in the
// transaction, using the state it had before the transaction started.
func (h *TraceCodeHook) BeforeCommit(_ context.Context, tx domain.Transaction, changes []Change) error {
	firstBefore := make(map[string]*Logistics)
	var order []string
	for _, change := range changes {
		if change.Entity != EntityLogistics || change.Action == ActionDelete {
			continue
		}
		after, ok := change.After.(Logistics)
		if !ok {
			continue
		}
		if _, seen := firstBefore[after.ID]; seen {
			continue
		}
		order = append(order, after.ID)
		if before, ok := change.Before.(Logistics); ok {
			firstBefore[after.ID] = &before
		} else {
			firstBefore[after.ID] = nil
		}
	}
	for _, id := range order {
		if err := h.apply(tx, id, firstBefore[id]); err != nil {
			return err
		}
	}
	return nil
}

func (h *TraceCodeHook) apply(tx domain.Transaction, id string, before *Logistics) error {
	current, ok := tx.FindLogistics(id)
	if !ok {
		return nil
	}
	transformation, ok := tx.FindTransformation(current.TransformationID)
	if !ok {
		return ErrNotFound{Entity: EntityTransformation, ID: current.TransformationID}
	}
	lot, ok := tx.FindLot(transformation.LotID)
	if !ok {
		return ErrNotFound{Entity: EntityLot, ID: transformation.LotID}
	}
	attempts := h.attempts
	if attempts <= 0 {
		attempts = DefaultTraceCodeAttempts
	}
	for i := 0; i < attempts; i++ {
		next := current
		next.TraceCode = nil
		if current.TraceCode != nil {
			code := *current.TraceCode
			next.TraceCode = &code
		}
		assigned, err := h.assignor.Apply(before, &next, lot.Code)
		if err != nil {
			return err
		}
		if next.TraceCodeValue() == current.TraceCodeValue() {
			return nil
		}
		_, err = tx.UpdateLogistics(id, func(l *Logistics) error {
			l.TraceCode = next.TraceCode
			return nil
		})
		if err == nil {
			return nil
		}
		var dup ErrDuplicate
		if assigned && errors.As(err, &dup) && dup.Field == "trace_code" {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: logistics %s after %d attempts", ErrTraceCodeConflict, id, attempts)
}
