package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/internal/actor"
	billdomain "github.com/smallbiznis/aquabill/internal/bill/domain"
	"github.com/smallbiznis/aquabill/internal/clock"
	"github.com/smallbiznis/aquabill/internal/config"
	householddomain "github.com/smallbiznis/aquabill/internal/household/domain"
	householdrepo "github.com/smallbiznis/aquabill/internal/household/repository"
	"github.com/smallbiznis/aquabill/internal/overview/domain"
	paymentdomain "github.com/smallbiznis/aquabill/internal/payment/domain"
	"github.com/smallbiznis/aquabill/internal/testutil"
	usagedomain "github.com/smallbiznis/aquabill/internal/usage/domain"
	"github.com/smallbiznis/aquabill/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)

type dashboard struct {
	svc  *Service
	db   *gorm.DB
	node *snowflake.Node
	seq  int

	uwase    *householddomain.Household
	habimana *householddomain.Household
	uwaseUID snowflake.ID
}

func setupDashboard(t *testing.T) *dashboard {
	t.Helper()

	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	d := &dashboard{
		db:   db,
		node: node,
		svc: NewService(Params{
			DB:         db,
			Log:        zap.NewNop(),
			Clock:      clock.NewFakeClock(testNow),
			Billing:    config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
			Households: householdrepo.Provide(),
		}).(*Service),
	}

	d.uwaseUID = node.Generate()
	d.uwase = d.household(t, "HH-2024-0001", "Uwase Family", "1199080012345671", householddomain.StatusActive, &d.uwaseUID)
	d.habimana = d.household(t, "HH-2024-0002", "Habimana Family", "1199080012345672", householddomain.StatusSuspended, nil)

	paid := d.bill(t, d.uwase.ID, "2024-02", "0.80", billdomain.StatusPaid)
	pending := d.bill(t, d.uwase.ID, "2024-03", "50.00", billdomain.StatusPending)
	other := d.bill(t, d.habimana.ID, "2024-03", "30.00", billdomain.StatusOverdue)

	d.payment(t, paid.ID, "0.70", testNow.AddDate(0, 0, -2), paymentdomain.StatusCompleted)
	d.payment(t, paid.ID, "0.10", testNow.AddDate(0, 0, -1), paymentdomain.StatusCompleted)
	d.payment(t, pending.ID, "12.00", time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), paymentdomain.StatusCompleted)
	d.payment(t, other.ID, "5.00", testNow.AddDate(0, 0, -3), paymentdomain.StatusCompleted)
	d.payment(t, other.ID, "9.00", testNow.AddDate(0, 0, -3), paymentdomain.StatusFailed)
	d.payment(t, other.ID, "4.00", time.Date(2023, 8, 1, 9, 0, 0, 0, time.UTC), paymentdomain.StatusCompleted)

	d.usage(t, d.uwase.ID, "2024-02", "10.10")
	d.usage(t, d.uwase.ID, "2024-03", "20.20")
	d.usage(t, d.habimana.ID, "2024-03", "100.05")
	return d
}

func (d *dashboard) household(t *testing.T, code, name, nationalID string, status householddomain.Status, userID *snowflake.ID) *householddomain.Household {
	t.Helper()
	household := &householddomain.Household{
		ID:              d.node.Generate(),
		Code:            code,
		Name:            name,
		HeadOfHousehold: name,
		NationalID:      nationalID,
		Phone:           "0788123456",
		Members:         4,
		ConnectionDate:  testNow,
		Status:          status,
		UserID:          userID,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	require.NoError(t, d.db.Create(household).Error)
	return household
}

func (d *dashboard) bill(t *testing.T, householdID snowflake.ID, period, total string, status billdomain.Status) *billdomain.Bill {
	t.Helper()
	d.seq++
	amount := decimal.RequireFromString(total)
	bill := &billdomain.Bill{
		ID:             d.node.Generate(),
		BillNumber:     "BILL-202403-000" + string(rune('0'+d.seq)),
		HouseholdID:    householdID,
		LitersConsumed: decimal.NewFromInt(1),
		RateApplied:    amount,
		Subtotal:       amount,
		PenaltyAmount:  decimal.Zero,
		DiscountAmount: decimal.Zero,
		TotalAmount:    amount,
		BillDate:       testNow,
		DueDate:        testNow.AddDate(0, 0, 30),
		BillingPeriod:  period,
		Status:         status,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
	require.NoError(t, d.db.Create(bill).Error)
	return bill
}

func (d *dashboard) payment(t *testing.T, billID snowflake.ID, amount string, paidAt time.Time, status paymentdomain.Status) {
	t.Helper()
	d.seq++
	suffix := string(rune('a' + d.seq))
	require.NoError(t, d.db.Create(&paymentdomain.Payment{
		ID:                   d.node.Generate(),
		ReceiptNumber:        "RCP-" + suffix,
		BillID:               billID,
		AmountPaid:           decimal.RequireFromString(amount),
		PaidAt:               paidAt,
		Method:               paymentdomain.MethodCash,
		TransactionReference: "TXN-" + suffix,
		PayerName:            "Payer",
		Status:               status,
		CreatedAt:            paidAt,
	}).Error)
}

func (d *dashboard) usage(t *testing.T, householdID snowflake.ID, month, liters string) {
	t.Helper()
	used := decimal.RequireFromString(liters)
	require.NoError(t, d.db.Create(&usagedomain.Record{
		ID:              d.node.Generate(),
		HouseholdID:     householdID,
		PreviousReading: decimal.NewFromInt(1000),
		CurrentReading:  decimal.NewFromInt(1000).Add(used),
		LitersUsed:      used,
		ReadingDate:     testNow,
		ReadingMonth:    month,
		Status:          usagedomain.StatusBilled,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}).Error)
}

func staffCtx() context.Context {
	return actor.WithActor(context.Background(), actor.Actor{UserID: snowflake.ID(900), Role: actor.RoleManager})
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}

func TestStatsForStaffCoverEveryHousehold(t *testing.T) {
	d := setupDashboard(t)

	stats, err := d.svc.Stats(staffCtx())
	require.NoError(t, err)

	assert.Equal(t, "RWF", stats.Currency)
	assert.Equal(t, int64(2), stats.TotalHouseholds)
	assert.Equal(t, int64(1), stats.ActiveConnections)
	assert.Equal(t, int64(1), stats.PendingBills)
	assert.Equal(t, int64(3), stats.TotalBills)
	assert.Equal(t, int64(5), stats.TotalPayments)
	assertDecimal(t, "5.80", stats.MonthlyRevenue)
	assertDecimal(t, "130.35", stats.TotalWaterConsumed)
}

func TestStatsForHouseholdAreScoped(t *testing.T) {
	d := setupDashboard(t)

	ctx := actor.WithActor(context.Background(), actor.Actor{UserID: d.uwaseUID, Role: actor.RoleHousehold})
	stats, err := d.svc.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.TotalHouseholds)
	assert.Equal(t, int64(1), stats.ActiveConnections)
	assert.Equal(t, int64(1), stats.PendingBills)
	assert.Equal(t, int64(2), stats.TotalBills)
	assert.Equal(t, int64(3), stats.TotalPayments)
	assertDecimal(t, "0.80", stats.MonthlyRevenue)
	assertDecimal(t, "30.30", stats.TotalWaterConsumed)
}

func TestStatsForUnlinkedHouseholdUserAreEmpty(t *testing.T) {
	d := setupDashboard(t)

	ctx := actor.WithActor(context.Background(), actor.Actor{UserID: snowflake.ID(77), Role: actor.RoleHousehold})
	stats, err := d.svc.Stats(ctx)
	require.NoError(t, err)

	assert.Zero(t, stats.TotalHouseholds)
	assert.Zero(t, stats.TotalBills)
	assert.True(t, stats.MonthlyRevenue.IsZero())
	assert.True(t, stats.TotalWaterConsumed.IsZero())
}

func TestChartsRevenueTrendAndDistribution(t *testing.T) {
	d := setupDashboard(t)

	charts, err := d.svc.Charts(staffCtx(), domain.ChartsRequest{})
	require.NoError(t, err)

	require.Len(t, charts.RevenueTrend, 6)
	months := make([]string, 0, len(charts.RevenueTrend))
	for _, point := range charts.RevenueTrend {
		months = append(months, point.Month)
	}
	assert.Equal(t, []string{"2023-10", "2023-11", "2023-12", "2024-01", "2024-02", "2024-03"}, months)
	assertDecimal(t, "0", charts.RevenueTrend[0].Revenue)
	assertDecimal(t, "12.00", charts.RevenueTrend[3].Revenue)
	assertDecimal(t, "5.80", charts.RevenueTrend[5].Revenue)

	assert.Equal(t, []domain.StatusCount{
		{Status: string(billdomain.StatusPending), Count: 1},
		{Status: string(billdomain.StatusPaid), Count: 1},
		{Status: string(billdomain.StatusOverdue), Count: 1},
		{Status: string(billdomain.StatusCancelled), Count: 0},
	}, charts.BillStatus)

	require.Len(t, charts.TopConsumers, 2)
	assert.Equal(t, "HH-2024-0002", charts.TopConsumers[0].HouseholdCode)
	assert.Equal(t, "Habimana Family", charts.TopConsumers[0].HouseholdName)
	assertDecimal(t, "100.05", charts.TopConsumers[0].TotalConsumption)
	assert.Equal(t, "HH-2024-0001", charts.TopConsumers[1].HouseholdCode)
	assertDecimal(t, "30.30", charts.TopConsumers[1].TotalConsumption)
}

func TestChartsLimits(t *testing.T) {
	d := setupDashboard(t)

	charts, err := d.svc.Charts(staffCtx(), domain.ChartsRequest{Months: 12, TopConsumers: 1})
	require.NoError(t, err)
	require.Len(t, charts.RevenueTrend, 12)
	assert.Equal(t, "2023-04", charts.RevenueTrend[0].Month)
	assertDecimal(t, "4.00", charts.RevenueTrend[4].Revenue)
	require.Len(t, charts.TopConsumers, 1)
	assert.Equal(t, d.habimana.ID, charts.TopConsumers[0].HouseholdID)

	_, err = d.svc.Charts(staffCtx(), domain.ChartsRequest{Months: 30})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestChartsAreStaffOnly(t *testing.T) {
	d := setupDashboard(t)

	ctx := actor.WithActor(context.Background(), actor.Actor{UserID: d.uwaseUID, Role: actor.RoleHousehold})
	_, err := d.svc.Charts(ctx, domain.ChartsRequest{})
	assert.ErrorIs(t, err, domain.ErrStaffOnly)
	assert.Equal(t, errs.KindPrecondition, errs.KindOf(err))
}
