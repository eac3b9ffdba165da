package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"github.com/smallbiznis/aquabill/pkg/errs"
)

type RecordPaymentRequest struct {
	BillID     snowflake.ID    `json:"bill_id" validate:"required"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Method     Method          `json:"payment_method" validate:"required,oneof=CASH MOBILE_MONEY BANK_TRANSFER"`
	PayerName  string          `json:"payer_name" validate:"required,max=100"`
	PayerPhone string          `json:"payer_phone" validate:"omitempty,numeric,min=10,max=15"`
	// TransactionReference is kept as-is when a payment gateway supplied it.
	TransactionReference string     `json:"transaction_reference" validate:"omitempty,max=100"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
}

// Balance is a bill's standing against its completed payments.
type Balance struct {
	BillID      snowflake.ID    `json:"bill_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Remaining   decimal.Decimal `json:"remaining"`
}

// NewBalance derives the remaining amount, never below zero.
func NewBalance(billID snowflake.ID, total, paid decimal.Decimal) Balance {
	remaining := total.Sub(paid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return Balance{BillID: billID, TotalAmount: total, TotalPaid: paid, Remaining: remaining}
}

type ListPaymentRequest struct {
	BillID    snowflake.ID `json:"bill_id"`
	Method    Method       `json:"payment_method" validate:"omitempty,oneof=CASH MOBILE_MONEY BANK_TRANSFER"`
	Status    Status       `json:"payment_status" validate:"omitempty,oneof=COMPLETED PENDING FAILED"`
	PageToken string       `json:"page_token"`
	PageSize  int          `json:"page_size"`
}

type ListPaymentFilter struct {
	BillID snowflake.ID
	Method Method
	Status Status
}

type ListPaymentResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

type Service interface {
	Record(ctx context.Context, req RecordPaymentRequest) (Payment, error)
	Balance(ctx context.Context, billID snowflake.ID) (Balance, error)
	GetByReceipt(ctx context.Context, receiptNumber string) (Payment, error)
	List(ctx context.Context, req ListPaymentRequest) (ListPaymentResponse, error)
}

var (
	ErrInvalidAmount      = errs.New(errs.KindValidation, "invalid_payment_amount")
	ErrOverpayment        = errs.New(errs.KindOverpayment, "overpayment")
	ErrBillNotFound       = errs.New(errs.KindNotFound, "bill_not_found")
	ErrBillNotPayable     = errs.New(errs.KindPrecondition, "bill_not_payable")
	ErrDuplicateReference = errs.New(errs.KindDuplicate, "transaction_reference_exists")
	ErrNotFound           = errs.New(errs.KindNotFound, "payment_not_found")
	ErrHouseholdNotFound  = errs.New(errs.KindNotFound, "household_not_found")
)

// OverpaymentError reports the balance a rejected payment would have exceeded.
type OverpaymentError struct {
	Remaining decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return ErrOverpayment.Error() + ": remaining " + e.Remaining.StringFixed(2)
}

func (e *OverpaymentError) Is(target error) bool { return target == ErrOverpayment }

func (e *OverpaymentError) Kind() errs.Kind { return errs.KindOverpayment }

// RemainingOf extracts the remaining balance from an overpayment error.
func RemainingOf(err error) (decimal.Decimal, bool) {
	var over *OverpaymentError
	if errors.As(err, &over) {
		return over.Remaining, true
	}
	return decimal.Zero, false
}
