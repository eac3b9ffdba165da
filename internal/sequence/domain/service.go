package domain

import (
	"context"
	"strings"

	"github.com/smallbiznis/aquabill/pkg/errs"
	"gorm.io/gorm"
)

// SeedFunc returns the highest suffix already used in a namespace. It is
// consulted only when a counter row does not exist yet, or to resync a
// counter that fell behind the data it numbers.
type SeedFunc func(ctx context.Context, db *gorm.DB, ns Namespace) (int64, error)

type IssueRequest struct {
	Namespace Namespace
	Seed      SeedFunc
}

// Issuer hands out collision-free identifiers. Issue must run inside the
// caller's transaction so the counter increment commits or rolls back with
// the row that uses the identifier.
type Issuer interface {
	Issue(ctx context.Context, tx *gorm.DB, req IssueRequest) (string, error)
	// Transaction runs fn in a transaction and replays it when fn reports an
	// identifier conflict.
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

var (
	ErrInvalidNamespace   = errs.New(errs.KindValidation, "invalid_sequence_namespace")
	ErrInvalidIdentifier  = errs.New(errs.KindValidation, "invalid_identifier")
	ErrMissingTransaction = errs.New(errs.KindInternal, "sequence_missing_transaction")
	ErrIdentifierConflict = errs.New(errs.KindConflict, "identifier_conflict")
	ErrRetriesExhausted   = errs.New(errs.KindConflict, "identifier_retries_exhausted")
)

// ConflictError reports that an issued identifier collided with an existing
// row. Requests name the namespaces to resync before the retry.
type ConflictError struct {
	Requests []IssueRequest
}

// Conflict builds the error a service returns when inserting an issued
// identifier hits a unique violation.
func Conflict(reqs ...IssueRequest) error {
	return &ConflictError{Requests: reqs}
}

func (e *ConflictError) Error() string {
	names := make([]string, 0, len(e.Requests))
	for _, req := range e.Requests {
		names = append(names, req.Namespace.String())
	}
	return ErrIdentifierConflict.Error() + ": " + strings.Join(names, ",")
}

func (e *ConflictError) Unwrap() error { return ErrIdentifierConflict }

func (e *ConflictError) Kind() errs.Kind { return errs.KindConflict }
