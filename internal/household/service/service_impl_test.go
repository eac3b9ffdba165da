package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/actor"
	"github.com/smallbiznis/aquabill/internal/clock"
	"github.com/smallbiznis/aquabill/internal/config"
	"github.com/smallbiznis/aquabill/internal/events"
	"github.com/smallbiznis/aquabill/internal/household/domain"
	"github.com/smallbiznis/aquabill/internal/household/repository"
	sequencerepo "github.com/smallbiznis/aquabill/internal/sequence/repository"
	sequenceservice "github.com/smallbiznis/aquabill/internal/sequence/service"
	"github.com/smallbiznis/aquabill/internal/testutil"
	"github.com/smallbiznis/aquabill/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

func setupHouseholds(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(testNow)
	issuer := sequenceservice.NewService(sequenceservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clk,
		Repo:    sequencerepo.Provide(),
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Repo:   repository.Provide(),
		Issuer: issuer,
		Outbox: events.NewOutbox(node, clk),
	}).(*Service)
	return svc, db
}

func registerRequest(nationalID string) domain.RegisterHouseholdRequest {
	return domain.RegisterHouseholdRequest{
		Name:            "Uwase Family",
		HeadOfHousehold: "Uwase Marie",
		NationalID:      nationalID,
		Phone:           "0788123456",
		Sector:          "Kimironko",
	}
}

func TestRegisterAssignsSequentialCodes(t *testing.T) {
	svc, db := setupHouseholds(t)
	ctx := actor.WithActor(context.Background(), actor.Actor{UserID: 42, Role: actor.RoleAdmin})

	first, err := svc.Register(ctx, registerRequest("1199080012345671"))
	require.NoError(t, err)
	assert.Equal(t, "HH-2024-0001", first.Code)
	assert.Equal(t, domain.StatusActive, first.Status)
	assert.Equal(t, 1, first.Members)
	assert.True(t, first.ConnectionDate.Equal(testNow))
	require.NotNil(t, first.RegisteredBy)
	assert.Equal(t, snowflake.ID(42), *first.RegisteredBy)

	second, err := svc.Register(ctx, registerRequest("1199080012345672"))
	require.NoError(t, err)
	assert.Equal(t, "HH-2024-0002", second.Code)

	var stored []events.BillingEvent
	require.NoError(t, db.Where("event_type = ?", events.EventHouseholdRegistered).Find(&stored).Error)
	assert.Len(t, stored, 2)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc, _ := setupHouseholds(t)
	ctx := context.Background()

	userID := snowflake.ID(900)
	req := registerRequest("1199080012345671")
	req.MeterNumber = "MTR-001"
	req.UserID = &userID
	_, err := svc.Register(ctx, req)
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerRequest("1199080012345671"))
	assert.ErrorIs(t, err, domain.ErrNationalIDTaken)

	dupMeter := registerRequest("1199080012345672")
	dupMeter.MeterNumber = " MTR-001 "
	_, err = svc.Register(ctx, dupMeter)
	assert.ErrorIs(t, err, domain.ErrMeterNumberTaken)

	dupUser := registerRequest("1199080012345673")
	dupUser.UserID = &userID
	_, err = svc.Register(ctx, dupUser)
	assert.ErrorIs(t, err, domain.ErrUserAlreadyLinked)
	assert.Equal(t, errs.KindDuplicate, errs.KindOf(err))
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, _ := setupHouseholds(t)

	cases := map[string]func(*domain.RegisterHouseholdRequest){
		"short national id":  func(r *domain.RegisterHouseholdRequest) { r.NationalID = "119908001234567" },
		"non numeric phone":  func(r *domain.RegisterHouseholdRequest) { r.Phone = "07881234ab" },
		"missing name":       func(r *domain.RegisterHouseholdRequest) { r.Name = "   " },
		"bad email":          func(r *domain.RegisterHouseholdRequest) { r.Email = "not-an-email" },
		"negative household": func(r *domain.RegisterHouseholdRequest) { r.Members = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := registerRequest("1199080012345671")
			mutate(&req)
			_, err := svc.Register(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
		})
	}
}

func TestUpdateStatusAndLookup(t *testing.T) {
	svc, _ := setupHouseholds(t)
	ctx := context.Background()

	created, err := svc.Register(ctx, registerRequest("1199080012345671"))
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, domain.UpdateStatusRequest{ID: created.ID, Status: domain.StatusSuspended})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, updated.Status)
	assert.False(t, updated.Billable())

	byCode, err := svc.GetByCode(ctx, " hh-2024-0001 ")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, byCode.Status)

	_, err = svc.UpdateStatus(ctx, domain.UpdateStatusRequest{ID: created.ID, Status: "CLOSED"})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = svc.UpdateStatus(ctx, domain.UpdateStatusRequest{ID: 12345, Status: domain.StatusActive})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByID(ctx, 12345)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFiltersByStatusAndSearch(t *testing.T) {
	svc, _ := setupHouseholds(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, registerRequest("1199080012345671"))
	require.NoError(t, err)
	second := registerRequest("1199080012345672")
	second.Name = "Habimana Family"
	second.HeadOfHousehold = "Habimana Jean"
	_, err = svc.Register(ctx, second)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, domain.UpdateStatusRequest{ID: first.ID, Status: domain.StatusInactive})
	require.NoError(t, err)

	active, err := svc.List(ctx, domain.ListHouseholdRequest{Status: domain.StatusActive})
	require.NoError(t, err)
	require.Len(t, active.Households, 1)
	assert.Equal(t, "Habimana Family", active.Households[0].Name)

	found, err := svc.List(ctx, domain.ListHouseholdRequest{Search: "uwase"})
	require.NoError(t, err)
	require.Len(t, found.Households, 1)
	assert.Equal(t, first.ID, found.Households[0].ID)
}
