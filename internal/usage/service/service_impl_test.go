package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/internal/actor"
	"github.com/smallbiznis/aquabill/internal/clock"
	householddomain "github.com/smallbiznis/aquabill/internal/household/domain"
	householdrepo "github.com/smallbiznis/aquabill/internal/household/repository"
	"github.com/smallbiznis/aquabill/internal/testutil"
	"github.com/smallbiznis/aquabill/internal/usage/domain"
	"github.com/smallbiznis/aquabill/internal/usage/repository"
	"github.com/smallbiznis/aquabill/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

func setupUsage(t *testing.T) (*Service, *gorm.DB, snowflake.ID) {
	t.Helper()

	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	household := householddomain.Household{
		ID:              node.Generate(),
		Code:            "HH-2024-0001",
		Name:            "Uwase Family",
		HeadOfHousehold: "Uwase Marie",
		NationalID:      "1199080012345678",
		Phone:           "0788123456",
		Members:         4,
		ConnectionDate:  testNow,
		Status:          householddomain.StatusActive,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	require.NoError(t, db.Create(&household).Error)

	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewFakeClock(testNow),
		Repo:       repository.Provide(),
		Households: householdrepo.Provide(),
	}).(*Service)
	return svc, db, household.ID
}

func TestRecordRecomputesConsumption(t *testing.T) {
	svc, _, householdID := setupUsage(t)

	supplied := decimal.NewFromInt(9999)
	ctx := actor.WithActor(context.Background(), actor.Actor{UserID: snowflake.ID(77), Role: actor.RoleManager})
	record, err := svc.Record(ctx, domain.RecordUsageRequest{
		HouseholdID:     householdID,
		PreviousReading: decimal.RequireFromString("1200.5"),
		CurrentReading:  decimal.RequireFromString("1300.75"),
		LitersUsed:      &supplied,
		ReadingMonth:    "2024-03",
	})
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("100.25").Equal(record.LitersUsed))
	assert.Equal(t, domain.StatusPending, record.Status)
	assert.Equal(t, "2024-03", record.ReadingMonth)
	assert.Equal(t, testNow, record.ReadingDate)
	require.NotNil(t, record.RecordedBy)
	assert.Equal(t, snowflake.ID(77), *record.RecordedBy)

	stored, err := svc.GetForPeriod(context.Background(), householdID, "2024-03")
	require.NoError(t, err)
	assert.True(t, record.LitersUsed.Equal(stored.LitersUsed))
}

func TestRecordRejectsDecreasingReading(t *testing.T) {
	svc, db, householdID := setupUsage(t)

	_, err := svc.Record(context.Background(), domain.RecordUsageRequest{
		HouseholdID:     householdID,
		PreviousReading: decimal.NewFromInt(500),
		CurrentReading:  decimal.NewFromInt(499),
		ReadingMonth:    "2024-03",
	})
	assert.ErrorIs(t, err, domain.ErrReadingDecreased)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	var count int64
	require.NoError(t, db.Model(&domain.Record{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordRejectsNegativeReading(t *testing.T) {
	svc, _, householdID := setupUsage(t)

	_, err := svc.Record(context.Background(), domain.RecordUsageRequest{
		HouseholdID:     householdID,
		PreviousReading: decimal.NewFromInt(-1),
		CurrentReading:  decimal.NewFromInt(10),
		ReadingMonth:    "2024-03",
	})
	assert.ErrorIs(t, err, domain.ErrNegativeReading)
}

func TestRecordRejectsInvalidMonth(t *testing.T) {
	svc, _, householdID := setupUsage(t)

	_, err := svc.Record(context.Background(), domain.RecordUsageRequest{
		HouseholdID:     householdID,
		PreviousReading: decimal.Zero,
		CurrentReading:  decimal.NewFromInt(10),
		ReadingMonth:    "2024-13",
	})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestRecordDuplicatePeriod(t *testing.T) {
	svc, db, householdID := setupUsage(t)

	req := domain.RecordUsageRequest{
		HouseholdID:     householdID,
		PreviousReading: decimal.Zero,
		CurrentReading:  decimal.NewFromInt(100),
		ReadingMonth:    "2024-03",
	}
	_, err := svc.Record(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrAlreadyRecorded)
	assert.Equal(t, errs.KindDuplicate, errs.KindOf(err))

	var count int64
	require.NoError(t, db.Model(&domain.Record{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	req.ReadingMonth = "2024-04"
	_, err = svc.Record(context.Background(), req)
	assert.NoError(t, err)
}

func TestRecordUnknownHousehold(t *testing.T) {
	svc, _, _ := setupUsage(t)

	_, err := svc.Record(context.Background(), domain.RecordUsageRequest{
		HouseholdID:     snowflake.ID(42),
		PreviousReading: decimal.Zero,
		CurrentReading:  decimal.NewFromInt(1),
		ReadingMonth:    "2024-03",
	})
	assert.ErrorIs(t, err, domain.ErrHouseholdNotFound)
}

func TestVerify(t *testing.T) {
	svc, db, householdID := setupUsage(t)

	record, err := svc.Record(context.Background(), domain.RecordUsageRequest{
		HouseholdID:     householdID,
		PreviousReading: decimal.Zero,
		CurrentReading:  decimal.NewFromInt(100),
		ReadingMonth:    "2024-03",
	})
	require.NoError(t, err)

	verified, err := svc.Verify(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, verified.Status)

	again, err := svc.Verify(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, again.Status)

	require.NoError(t, db.Model(&domain.Record{}).Where("id = ?", record.ID).Update("status", domain.StatusBilled).Error)
	_, err = svc.Verify(context.Background(), record.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyBilled)

	_, err = svc.Verify(context.Background(), snowflake.ID(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList(t *testing.T) {
	svc, _, householdID := setupUsage(t)

	for _, month := range []string{"2024-01", "2024-02", "2024-03"} {
		_, err := svc.Record(context.Background(), domain.RecordUsageRequest{
			HouseholdID:     householdID,
			PreviousReading: decimal.Zero,
			CurrentReading:  decimal.NewFromInt(10),
			ReadingMonth:    month,
		})
		require.NoError(t, err)
	}

	resp, err := svc.List(context.Background(), domain.ListUsageRequest{HouseholdID: householdID, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, resp.UsageRecords, 2)
	assert.True(t, resp.HasMore)

	next, err := svc.List(context.Background(), domain.ListUsageRequest{HouseholdID: householdID, PageSize: 2, PageToken: resp.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, next.UsageRecords, 1)
	assert.False(t, next.HasMore)

	filtered, err := svc.List(context.Background(), domain.ListUsageRequest{ReadingMonth: "2024-02"})
	require.NoError(t, err)
	require.Len(t, filtered.UsageRecords, 1)
	assert.Equal(t, "2024-02", filtered.UsageRecords[0].ReadingMonth)
}
