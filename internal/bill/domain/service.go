package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"github.com/smallbiznis/aquabill/pkg/errs"
)

type GenerateBillRequest struct {
	HouseholdID    snowflake.ID    `json:"household_id" validate:"required"`
	BillingPeriod  string          `json:"billing_period" validate:"required,len=7"`
	PenaltyAmount  decimal.Decimal `json:"penalty_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	// DueDate defaults to the bill date plus the configured due days.
	DueDate *time.Time `json:"due_date,omitempty"`
}

type GenerateBatchRequest struct {
	BillingPeriod string `json:"billing_period" validate:"required,len=7"`
	// HouseholdIDs restricts the run; empty means every active household.
	HouseholdIDs []snowflake.ID `json:"household_ids,omitempty"`
}

// Skip explains why a household got no bill in a batch run.
type Skip struct {
	HouseholdID   snowflake.ID `json:"household_id,omitempty"`
	HouseholdCode string       `json:"household_code,omitempty"`
	Code          string       `json:"code"`
	Reason        string       `json:"reason"`
}

type BatchResult struct {
	BillingPeriod string `json:"billing_period"`
	Created       []Bill `json:"created"`
	Skipped       []Skip `json:"skipped"`
}

type ListBillRequest struct {
	HouseholdID   snowflake.ID `json:"household_id"`
	BillingPeriod string       `json:"billing_period" validate:"omitempty,len=7"`
	Status        Status       `json:"status" validate:"omitempty,oneof=PENDING PAID OVERDUE CANCELLED"`
	PageToken     string       `json:"page_token"`
	PageSize      int          `json:"page_size"`
}

type ListBillFilter struct {
	HouseholdID   snowflake.ID
	BillingPeriod string
	Status        Status
}

type ListBillResponse struct {
	pagination.PageInfo
	Bills []Bill `json:"bills"`
}

type Service interface {
	Generate(ctx context.Context, req GenerateBillRequest) (Bill, error)
	// GenerateForPeriod bills every eligible household independently. When
	// no tariff is active it returns the result together with the error.
	GenerateForPeriod(ctx context.Context, req GenerateBatchRequest) (BatchResult, error)
	MarkOverdue(ctx context.Context, id snowflake.ID) (Bill, error)
	Cancel(ctx context.Context, id snowflake.ID) (Bill, error)
	GetByID(ctx context.Context, id snowflake.ID) (Bill, error)
	GetByNumber(ctx context.Context, billNumber string) (Bill, error)
	List(ctx context.Context, req ListBillRequest) (ListBillResponse, error)
}

// Locker serializes batch runs for one billing period across instances.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

var (
	ErrNotFound             = errs.New(errs.KindNotFound, "bill_not_found")
	ErrBillAlreadyExists    = errs.New(errs.KindDuplicate, "bill_already_exists")
	ErrHouseholdNotFound    = errs.New(errs.KindNotFound, "household_not_found")
	ErrHouseholdNotActive   = errs.New(errs.KindPrecondition, "household_not_active")
	ErrNoUsage              = errs.New(errs.KindPrecondition, "usage_not_found_for_period")
	ErrUsageAlreadyBilled   = errs.New(errs.KindPrecondition, "usage_already_billed")
	ErrInvalidAdjustment    = errs.New(errs.KindValidation, "invalid_bill_adjustment")
	ErrInvalidDueDate       = errs.New(errs.KindValidation, "invalid_due_date")
	ErrInvalidTransition    = errs.New(errs.KindPrecondition, "invalid_bill_status_transition")
	ErrHasCompletedPayments = errs.New(errs.KindPrecondition, "bill_has_completed_payments")
	ErrBatchInProgress      = errs.New(errs.KindConflict, "bill_batch_in_progress")
)
