package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/internal/actor"
	billdomain "github.com/smallbiznis/aquabill/internal/bill/domain"
	"github.com/smallbiznis/aquabill/internal/clock"
	"github.com/smallbiznis/aquabill/internal/config"
	householddomain "github.com/smallbiznis/aquabill/internal/household/domain"
	"github.com/smallbiznis/aquabill/internal/overview/domain"
	paymentdomain "github.com/smallbiznis/aquabill/internal/payment/domain"
	usagedomain "github.com/smallbiznis/aquabill/internal/usage/domain"
	pkgdb "github.com/smallbiznis/aquabill/pkg/db"
	"github.com/smallbiznis/aquabill/pkg/validate"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var billStatuses = []billdomain.Status{
	billdomain.StatusPending,
	billdomain.StatusPaid,
	billdomain.StatusOverdue,
	billdomain.StatusCancelled,
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Billing    *config.BillingConfigHolder
	Households householddomain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	billing    *config.BillingConfigHolder
	households householddomain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("overview.service"),
		clock:      p.Clock,
		billing:    p.Billing,
		households: p.Households,
	}
}

func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{
		Currency:           s.billing.Get().Currency,
		MonthlyRevenue:     decimal.Zero,
		TotalWaterConsumed: decimal.Zero,
	}

	sc, err := s.scopeFor(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	if sc.none {
		return stats, nil
	}

	db := s.db.WithContext(ctx)
	households := func() *gorm.DB { return sc.households(db.Model(&householddomain.Household{})) }
	bills := func() *gorm.DB { return sc.bills(db.Model(&billdomain.Bill{})) }
	payments := func() *gorm.DB {
		return sc.payments(db.Model(&paymentdomain.Payment{}).
			Where("payment_status = ?", paymentdomain.StatusCompleted))
	}

	if err := households().Count(&stats.TotalHouseholds).Error; err != nil {
		return domain.Stats{}, err
	}
	if err := households().Where("status = ?", householddomain.StatusActive).Count(&stats.ActiveConnections).Error; err != nil {
		return domain.Stats{}, err
	}
	if err := bills().Where("status = ?", billdomain.StatusPending).Count(&stats.PendingBills).Error; err != nil {
		return domain.Stats{}, err
	}
	if err := bills().Count(&stats.TotalBills).Error; err != nil {
		return domain.Stats{}, err
	}
	if err := payments().Count(&stats.TotalPayments).Error; err != nil {
		return domain.Stats{}, err
	}

	monthStart := truncateToMonth(s.clock.Now())
	stats.MonthlyRevenue, err = pkgdb.SumDecimal(
		payments().Where("paid_at >= ? AND paid_at < ?", monthStart, monthStart.AddDate(0, 1, 0)),
		"amount_paid",
	)
	if err != nil {
		return domain.Stats{}, err
	}
	stats.TotalWaterConsumed, err = pkgdb.SumDecimal(sc.usage(db.Model(&usagedomain.Record{})), "liters_used")
	if err != nil {
		return domain.Stats{}, err
	}
	return stats, nil
}

func (s *Service) Charts(ctx context.Context, req domain.ChartsRequest) (domain.Charts, error) {
	if !actor.FromContextOrSystem(ctx).IsStaff() {
		return domain.Charts{}, domain.ErrStaffOnly
	}
	if err := validate.Struct(req); err != nil {
		return domain.Charts{}, err
	}
	months := req.Months
	if months == 0 {
		months = domain.DefaultTrendMonths
	}
	top := req.TopConsumers
	if top == 0 {
		top = domain.DefaultTopConsumers
	}

	trend, err := s.revenueTrend(ctx, months)
	if err != nil {
		return domain.Charts{}, err
	}
	statuses, err := s.billStatusCounts(ctx)
	if err != nil {
		return domain.Charts{}, err
	}
	consumers, err := s.topConsumers(ctx, top)
	if err != nil {
		return domain.Charts{}, err
	}

	return domain.Charts{
		Currency:     s.billing.Get().Currency,
		RevenueTrend: trend,
		BillStatus:   statuses,
		TopConsumers: consumers,
	}, nil
}

type paymentRow struct {
	PaidAt     time.Time
	AmountPaid decimal.Decimal
}

// revenueTrend returns completed revenue per calendar month, oldest first,
// ending with the current month. Months without payments report zero.
func (s *Service) revenueTrend(ctx context.Context, months int) ([]domain.RevenuePoint, error) {
	end := truncateToMonth(s.clock.Now()).AddDate(0, 1, 0)
	start := end.AddDate(0, -months, 0)

	var rows []paymentRow
	err := s.db.WithContext(ctx).
		Model(&paymentdomain.Payment{}).
		Select("paid_at", "amount_paid").
		Where("payment_status = ? AND paid_at >= ? AND paid_at < ?", paymentdomain.StatusCompleted, start, end).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal, months)
	for _, row := range rows {
		key := monthKey(row.PaidAt)
		if total, ok := totals[key]; ok {
			totals[key] = total.Add(row.AmountPaid)
		} else {
			totals[key] = row.AmountPaid
		}
	}

	points := make([]domain.RevenuePoint, 0, months)
	for month := start; month.Before(end); month = month.AddDate(0, 1, 0) {
		key := monthKey(month)
		revenue, ok := totals[key]
		if !ok {
			revenue = decimal.Zero
		}
		points = append(points, domain.RevenuePoint{Month: key, Revenue: revenue})
	}
	return points, nil
}

type statusRow struct {
	Status billdomain.Status
	Count  int64
}

func (s *Service) billStatusCounts(ctx context.Context) ([]domain.StatusCount, error) {
	var rows []statusRow
	err := s.db.WithContext(ctx).
		Model(&billdomain.Bill{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[billdomain.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	out := make([]domain.StatusCount, 0, len(billStatuses))
	for _, status := range billStatuses {
		out = append(out, domain.StatusCount{Status: string(status), Count: counts[status]})
	}
	return out, nil
}

type usageRow struct {
	HouseholdID snowflake.ID
	LitersUsed  decimal.Decimal
}

// topConsumers ranks households by total recorded liters. Ties go to the
// older household id.
func (s *Service) topConsumers(ctx context.Context, limit int) ([]domain.Consumer, error) {
	var rows []usageRow
	err := s.db.WithContext(ctx).
		Model(&usagedomain.Record{}).
		Select("household_id", "liters_used").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[snowflake.ID]decimal.Decimal)
	for _, row := range rows {
		if total, ok := totals[row.HouseholdID]; ok {
			totals[row.HouseholdID] = total.Add(row.LitersUsed)
		} else {
			totals[row.HouseholdID] = row.LitersUsed
		}
	}

	ids := make([]snowflake.ID, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if c := totals[ids[i]].Cmp(totals[ids[j]]); c != 0 {
			return c > 0
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	if len(ids) == 0 {
		return []domain.Consumer{}, nil
	}

	households, err := s.households.ListAll(ctx, s.db, householddomain.ListHouseholdFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]*householddomain.Household, len(households))
	for _, household := range households {
		byID[household.ID] = household
	}

	consumers := make([]domain.Consumer, 0, len(ids))
	for _, id := range ids {
		consumer := domain.Consumer{HouseholdID: id, TotalConsumption: totals[id]}
		if household, ok := byID[id]; ok {
			consumer.HouseholdCode = household.Code
			consumer.HouseholdName = household.Name
		}
		consumers = append(consumers, consumer)
	}
	return consumers, nil
}

// scope narrows dashboard queries to one household. The zero value covers
// every household.
type scope struct {
	householdID snowflake.ID
	none        bool
}

func (s *Service) scopeFor(ctx context.Context) (scope, error) {
	a := actor.FromContextOrSystem(ctx)
	if a.Role != actor.RoleHousehold {
		return scope{}, nil
	}
	if a.UserID == 0 {
		return scope{none: true}, nil
	}
	household, err := s.households.FindByUserID(ctx, s.db, a.UserID)
	if err != nil {
		return scope{}, err
	}
	if household == nil {
		return scope{none: true}, nil
	}
	return scope{householdID: household.ID}, nil
}

func (sc scope) households(stmt *gorm.DB) *gorm.DB {
	if sc.householdID == 0 {
		return stmt
	}
	return stmt.Where("id = ?", sc.householdID)
}

func (sc scope) bills(stmt *gorm.DB) *gorm.DB {
	if sc.householdID == 0 {
		return stmt
	}
	return stmt.Where("household_id = ?", sc.householdID)
}

func (sc scope) payments(stmt *gorm.DB) *gorm.DB {
	if sc.householdID == 0 {
		return stmt
	}
	return stmt.Where("bill_id IN (SELECT id FROM bills WHERE household_id = ?)", sc.householdID)
}

func (sc scope) usage(stmt *gorm.DB) *gorm.DB {
	if sc.householdID == 0 {
		return stmt
	}
	return stmt.Where("household_id = ?", sc.householdID)
}

func truncateToMonth(value time.Time) time.Time {
	value = value.UTC()
	return time.Date(value.Year(), value.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func monthKey(value time.Time) string {
	return value.UTC().Format("2006-01")
}
