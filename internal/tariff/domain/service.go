package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"github.com/smallbiznis/aquabill/pkg/errs"
)

type CreateTariffRequest struct {
	Name          string          `json:"rate_name" validate:"required,max=100"`
	RatePerLiter  decimal.Decimal `json:"rate_per_liter"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to"`
	Activate      bool            `json:"is_active"`
}

type ListTariffRequest struct {
	ActiveOnly bool   `json:"active_only"`
	PageToken  string `json:"page_token"`
	PageSize   int    `json:"page_size"`
}

type ListTariffResponse struct {
	pagination.PageInfo
	Rates []Rate `json:"rates"`
}

type Service interface {
	Create(ctx context.Context, req CreateTariffRequest) (Rate, error)
	Activate(ctx context.Context, id snowflake.ID) (Rate, error)
	Deactivate(ctx context.Context, id snowflake.ID) (Rate, error)
	// GetActive returns the single active rate.
	GetActive(ctx context.Context) (Rate, error)
	List(ctx context.Context, req ListTariffRequest) (ListTariffResponse, error)
}

var (
	ErrInvalidRate           = errs.New(errs.KindValidation, "invalid_rate_per_liter")
	ErrInvalidEffectiveRange = errs.New(errs.KindValidation, "invalid_effective_range")
	ErrNotFound              = errs.New(errs.KindNotFound, "tariff_not_found")
	ErrNoActiveTariff        = errs.New(errs.KindPrecondition, "no_active_tariff")
	ErrMultipleActiveTariffs = errs.New(errs.KindPrecondition, "multiple_active_tariffs")
)

// SingleActive enforces that exactly one rate is active.
func SingleActive(active []*Rate) (*Rate, error) {
	switch len(active) {
	case 0:
		return nil, ErrNoActiveTariff
	case 1:
		return active[0], nil
	default:
		return nil, ErrMultipleActiveTariffs
	}
}
