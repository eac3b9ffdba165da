package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"github.com/smallbiznis/aquabill/pkg/errs"
)

type RegisterHouseholdRequest struct {
	Name            string        `json:"household_name" validate:"required,max=100"`
	HeadOfHousehold string        `json:"head_of_household" validate:"required,max=100"`
	NationalID      string        `json:"national_id" validate:"required,numeric,len=16"`
	Phone           string        `json:"phone_number" validate:"required,numeric,min=10,max=15"`
	Email           string        `json:"email" validate:"omitempty,email,max=100"`
	Address         string        `json:"address"`
	Sector          string        `json:"sector" validate:"max=50"`
	Cell            string        `json:"cell" validate:"max=50"`
	Village         string        `json:"village" validate:"max=50"`
	Members         int           `json:"number_of_members" validate:"gte=1"`
	MeterNumber     string        `json:"meter_number" validate:"max=50"`
	ConnectionDate  time.Time     `json:"connection_date"`
	UserID          *snowflake.ID `json:"user_id"`
}

type UpdateStatusRequest struct {
	ID     snowflake.ID `json:"id" validate:"required"`
	Status Status       `json:"status" validate:"required,oneof=ACTIVE INACTIVE SUSPENDED"`
}

type ListHouseholdRequest struct {
	Status    Status `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE SUSPENDED"`
	Search    string `json:"search"`
	PageToken string `json:"page_token"`
	PageSize  int    `json:"page_size"`
}

type ListHouseholdFilter struct {
	Status Status
	Search string
	IDs    []snowflake.ID
}

type ListHouseholdResponse struct {
	pagination.PageInfo
	Households []Household `json:"households"`
}

type Service interface {
	Register(ctx context.Context, req RegisterHouseholdRequest) (Household, error)
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (Household, error)
	GetByID(ctx context.Context, id snowflake.ID) (Household, error)
	GetByCode(ctx context.Context, code string) (Household, error)
	List(ctx context.Context, req ListHouseholdRequest) (ListHouseholdResponse, error)
}

var (
	ErrNotFound          = errs.New(errs.KindNotFound, "household_not_found")
	ErrNationalIDTaken   = errs.New(errs.KindDuplicate, "national_id_taken")
	ErrMeterNumberTaken  = errs.New(errs.KindDuplicate, "meter_number_taken")
	ErrUserAlreadyLinked = errs.New(errs.KindDuplicate, "user_already_linked")
	ErrInvalidStatus     = errs.New(errs.KindValidation, "invalid_household_status")
	ErrNotActive         = errs.New(errs.KindPrecondition, "household_not_active")
)
