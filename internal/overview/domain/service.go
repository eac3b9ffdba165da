package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/pkg/errs"
)

const (
	DefaultTrendMonths  = 6
	DefaultTopConsumers = 5
)

// Stats are the headline dashboard figures. For a household actor every
// figure covers only their own household.
type Stats struct {
	Currency           string          `json:"currency"`
	TotalHouseholds    int64           `json:"total_households"`
	ActiveConnections  int64           `json:"active_connections"`
	MonthlyRevenue     decimal.Decimal `json:"monthly_revenue"`
	PendingBills       int64           `json:"pending_bills"`
	TotalBills         int64           `json:"total_bills"`
	TotalPayments      int64           `json:"total_payments"`
	TotalWaterConsumed decimal.Decimal `json:"total_water_consumed"`
}

type ChartsRequest struct {
	Months       int `json:"months" validate:"omitempty,min=1,max=24"`
	TopConsumers int `json:"top_consumers" validate:"omitempty,min=1,max=50"`
}

type RevenuePoint struct {
	Month   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type Consumer struct {
	HouseholdID      snowflake.ID    `json:"household_id"`
	HouseholdCode    string          `json:"household_code"`
	HouseholdName    string          `json:"household_name"`
	TotalConsumption decimal.Decimal `json:"total_consumption"`
}

type Charts struct {
	Currency     string         `json:"currency"`
	RevenueTrend []RevenuePoint `json:"revenue_trend"`
	BillStatus   []StatusCount  `json:"bill_status"`
	TopConsumers []Consumer     `json:"top_consumers"`
}

// Service exposes the utility dashboard.
type Service interface {
	Stats(ctx context.Context) (Stats, error)
	// Charts is restricted to staff.
	Charts(ctx context.Context, req ChartsRequest) (Charts, error)
}

var ErrStaffOnly = errs.New(errs.KindPrecondition, "staff_only")
