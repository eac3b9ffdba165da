package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"github.com/smallbiznis/aquabill/pkg/errs"
)

type RecordUsageRequest struct {
	HouseholdID     snowflake.ID    `json:"household_id" validate:"required"`
	PreviousReading decimal.Decimal `json:"previous_reading"`
	CurrentReading  decimal.Decimal `json:"current_reading"`
	// LitersUsed is accepted for compatibility and always recomputed.
	LitersUsed   *decimal.Decimal `json:"liters_used,omitempty"`
	ReadingMonth string           `json:"reading_month" validate:"required,len=7"`
	ReadingDate  time.Time        `json:"reading_date"`
}

type ListUsageRequest struct {
	HouseholdID  snowflake.ID `json:"household_id"`
	ReadingMonth string       `json:"reading_month" validate:"omitempty,len=7"`
	Status       Status       `json:"status" validate:"omitempty,oneof=PENDING VERIFIED BILLED"`
	PageToken    string       `json:"page_token"`
	PageSize     int          `json:"page_size"`
}

type ListUsageFilter struct {
	HouseholdID  snowflake.ID
	ReadingMonth string
	Status       Status
}

type ListUsageResponse struct {
	pagination.PageInfo
	UsageRecords []Record `json:"usage_records"`
}

type Service interface {
	Record(ctx context.Context, req RecordUsageRequest) (Record, error)
	Verify(ctx context.Context, id snowflake.ID) (Record, error)
	GetForPeriod(ctx context.Context, householdID snowflake.ID, readingMonth string) (Record, error)
	List(ctx context.Context, req ListUsageRequest) (ListUsageResponse, error)
}

var (
	ErrNegativeReading   = errs.New(errs.KindValidation, "negative_reading")
	ErrReadingDecreased  = errs.New(errs.KindValidation, "current_reading_below_previous")
	ErrAlreadyRecorded   = errs.New(errs.KindDuplicate, "usage_already_recorded")
	ErrHouseholdNotFound = errs.New(errs.KindNotFound, "household_not_found")
	ErrNotFound          = errs.New(errs.KindNotFound, "usage_not_found")
	ErrAlreadyBilled     = errs.New(errs.KindPrecondition, "usage_already_billed")
)
