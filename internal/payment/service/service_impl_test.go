package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/internal/actor"
	billdomain "github.com/smallbiznis/aquabill/internal/bill/domain"
	billrepo "github.com/smallbiznis/aquabill/internal/bill/repository"
	"github.com/smallbiznis/aquabill/internal/clock"
	"github.com/smallbiznis/aquabill/internal/config"
	"github.com/smallbiznis/aquabill/internal/events"
	householddomain "github.com/smallbiznis/aquabill/internal/household/domain"
	householdrepo "github.com/smallbiznis/aquabill/internal/household/repository"
	"github.com/smallbiznis/aquabill/internal/payment/domain"
	"github.com/smallbiznis/aquabill/internal/payment/repository"
	sequencerepo "github.com/smallbiznis/aquabill/internal/sequence/repository"
	sequenceservice "github.com/smallbiznis/aquabill/internal/sequence/service"
	"github.com/smallbiznis/aquabill/internal/testutil"
	"github.com/smallbiznis/aquabill/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 3, 20, 14, 30, 0, 0, time.UTC)

type failingDispatcher struct {
	mu    sync.Mutex
	calls int
}

func (d *failingDispatcher) Dispatch(context.Context, events.Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return errors.New("sms gateway unreachable")
}

func setupPayments(t *testing.T) (*Service, *gorm.DB, *billdomain.Bill) {
	t.Helper()
	return setupPaymentsWith(t, nil)
}

func setupPaymentsWith(t *testing.T, dispatcher events.Dispatcher) (*Service, *gorm.DB, *billdomain.Bill) {
	t.Helper()

	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)

	userID := node.Generate()
	household := householddomain.Household{
		ID:              node.Generate(),
		Code:            "HH-2024-0001",
		Name:            "Mukamana Family",
		HeadOfHousehold: "Mukamana Alice",
		NationalID:      "1198570012345678",
		Phone:           "0788000111",
		Members:         5,
		ConnectionDate:  testNow,
		Status:          householddomain.StatusActive,
		UserID:          &userID,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	require.NoError(t, db.Create(&household).Error)

	bill := &billdomain.Bill{
		ID:             node.Generate(),
		BillNumber:     "BILL-202403-0001",
		HouseholdID:    household.ID,
		LitersConsumed: decimal.NewFromInt(100),
		RateApplied:    decimal.RequireFromString("0.5"),
		Subtotal:       decimal.NewFromInt(50),
		PenaltyAmount:  decimal.Zero,
		DiscountAmount: decimal.Zero,
		TotalAmount:    decimal.NewFromInt(50),
		BillDate:       testNow,
		DueDate:        testNow.AddDate(0, 0, 30),
		BillingPeriod:  "2024-03",
		Status:         billdomain.StatusPending,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
	require.NoError(t, db.Create(bill).Error)

	holder := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())
	issuer := sequenceservice.NewService(sequenceservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clk,
		Repo:    sequencerepo.Provide(),
		Billing: holder,
	})

	var emitter *events.Emitter
	if dispatcher != nil {
		emitter = events.NewEmitter(events.EmitterParams{
			DB:         db,
			Log:        zap.NewNop(),
			Clock:      clk,
			Dispatcher: dispatcher,
		})
	}

	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Repo:       repository.Provide(),
		Bills:      billrepo.Provide(),
		Households: householdrepo.Provide(),
		Issuer:     issuer,
		Outbox:     events.NewOutbox(node, clk),
		Emitter:    emitter,
	}).(*Service)
	return svc, db, bill
}

func cashPayment(billID snowflake.ID, amount string) domain.RecordPaymentRequest {
	return domain.RecordPaymentRequest{
		BillID:     billID,
		AmountPaid: decimal.RequireFromString(amount),
		Method:     domain.MethodCash,
		PayerName:  "Mukamana Alice",
	}
}

func billStatus(t *testing.T, db *gorm.DB, id snowflake.ID) billdomain.Status {
	t.Helper()
	var bill billdomain.Bill
	require.NoError(t, db.First(&bill, "id = ?", id).Error)
	return bill.Status
}

func eventCount(t *testing.T, db *gorm.DB, eventType string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&events.BillingEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestPartialPaymentsSettleBill(t *testing.T) {
	svc, db, bill := setupPayments(t)
	ctx := context.Background()

	first, err := svc.Record(ctx, cashPayment(bill.ID, "30.00"))
	require.NoError(t, err)
	assert.Equal(t, "RCP-202403-0001", first.ReceiptNumber)
	assert.Equal(t, "TXN-20240320-0001", first.TransactionReference)
	assert.Equal(t, domain.StatusCompleted, first.Status)
	assert.Equal(t, billdomain.StatusPending, billStatus(t, db, bill.ID))

	second, err := svc.Record(ctx, cashPayment(bill.ID, "20.00"))
	require.NoError(t, err)
	assert.Equal(t, "RCP-202403-0002", second.ReceiptNumber)
	assert.Equal(t, "TXN-20240320-0002", second.TransactionReference)
	assert.Equal(t, billdomain.StatusPaid, billStatus(t, db, bill.ID))

	_, err = svc.Record(ctx, cashPayment(bill.ID, "0.01"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOverpayment)
	assert.Equal(t, "overpayment: remaining 0.00", err.Error())

	assert.Equal(t, int64(2), eventCount(t, db, events.EventPaymentRecorded))
	assert.Equal(t, int64(1), eventCount(t, db, events.EventBillPaid))

	balance, err := svc.Balance(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", balance.TotalPaid.StringFixed(2))
	assert.Equal(t, "0.00", balance.Remaining.StringFixed(2))
}

func TestFractionalPaymentsSettleExactly(t *testing.T) {
	svc, db, bill := setupPayments(t)
	ctx := context.Background()

	require.NoError(t, db.Model(&billdomain.Bill{}).Where("id = ?", bill.ID).Updates(map[string]any{
		"subtotal":     decimal.RequireFromString("0.80"),
		"total_amount": decimal.RequireFromString("0.80"),
	}).Error)

	_, err := svc.Record(ctx, cashPayment(bill.ID, "0.70"))
	require.NoError(t, err)
	_, err = svc.Record(ctx, cashPayment(bill.ID, "0.10"))
	require.NoError(t, err)

	assert.Equal(t, billdomain.StatusPaid, billStatus(t, db, bill.ID))
	balance, err := svc.Balance(ctx, bill.ID)
	require.NoError(t, err)
	assert.True(t, balance.TotalPaid.Equal(decimal.RequireFromString("0.8")), "paid %s", balance.TotalPaid)
	assert.True(t, balance.Remaining.IsZero(), "remaining %s", balance.Remaining)
	assert.Equal(t, int64(1), eventCount(t, db, events.EventBillPaid))
}

func TestRecordSurvivesDispatchFailure(t *testing.T) {
	dispatcher := &failingDispatcher{}
	svc, db, bill := setupPaymentsWith(t, dispatcher)

	payment, err := svc.Record(context.Background(), cashPayment(bill.ID, "50.00"))
	require.NoError(t, err)
	assert.Equal(t, "RCP-202403-0001", payment.ReceiptNumber)

	var stored domain.Payment
	require.NoError(t, db.First(&stored, "id = ?", payment.ID).Error)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, billdomain.StatusPaid, billStatus(t, db, bill.ID))

	assert.Equal(t, 2, dispatcher.calls)
	var unpublished int64
	require.NoError(t, db.Model(&events.BillingEvent{}).Where("published = ?", false).Count(&unpublished).Error)
	assert.Equal(t, int64(2), unpublished)
}

func TestOverpaymentReportsRemaining(t *testing.T) {
	svc, db, bill := setupPayments(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, cashPayment(bill.ID, "30.00"))
	require.NoError(t, err)

	_, err = svc.Record(ctx, cashPayment(bill.ID, "20.01"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOverpayment)
	assert.Equal(t, errs.KindOverpayment, errs.KindOf(err))
	assert.Equal(t, "overpayment: remaining 20.00", err.Error())

	remaining, ok := domain.RemainingOf(err)
	require.True(t, ok)
	assert.Equal(t, "20.00", remaining.StringFixed(2))

	var count int64
	require.NoError(t, db.Model(&domain.Payment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestOverdueBillIsPayable(t *testing.T) {
	svc, db, bill := setupPayments(t)
	ctx := context.Background()

	require.NoError(t, db.Model(&billdomain.Bill{}).Where("id = ?", bill.ID).Update("status", billdomain.StatusOverdue).Error)
	_, err := svc.Record(ctx, cashPayment(bill.ID, "50.00"))
	require.NoError(t, err)
	assert.Equal(t, billdomain.StatusPaid, billStatus(t, db, bill.ID))
}

func TestRejectsInvalidPayments(t *testing.T) {
	svc, _, bill := setupPayments(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, cashPayment(bill.ID, "0"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Record(ctx, cashPayment(bill.ID, "-5"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	req := cashPayment(bill.ID, "5")
	req.Method = "CHEQUE"
	_, err = svc.Record(ctx, req)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = svc.Record(ctx, cashPayment(snowflake.ID(12), "5"))
	assert.ErrorIs(t, err, domain.ErrBillNotFound)
}

func TestCancelledBillIsNotPayable(t *testing.T) {
	svc, db, bill := setupPayments(t)

	require.NoError(t, db.Model(&billdomain.Bill{}).Where("id = ?", bill.ID).Update("status", billdomain.StatusCancelled).Error)
	_, err := svc.Record(context.Background(), cashPayment(bill.ID, "10"))
	assert.ErrorIs(t, err, domain.ErrBillNotPayable)
	assert.Equal(t, errs.KindPrecondition, errs.KindOf(err))
}

func TestGatewayReferenceIsPreserved(t *testing.T) {
	svc, _, bill := setupPayments(t)
	ctx := context.Background()

	req := cashPayment(bill.ID, "10")
	req.Method = domain.MethodMobileMoney
	req.TransactionReference = "MOMO-88812345"
	payment, err := svc.Record(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "MOMO-88812345", payment.TransactionReference)
	assert.Equal(t, "RCP-202403-0001", payment.ReceiptNumber)

	_, err = svc.Record(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	assert.Equal(t, errs.KindDuplicate, errs.KindOf(err))

	next, err := svc.Record(ctx, cashPayment(bill.ID, "10"))
	require.NoError(t, err)
	assert.Equal(t, "TXN-20240320-0001", next.TransactionReference)
	assert.Equal(t, "RCP-202403-0002", next.ReceiptNumber)
}

func TestDirectionFollowsSubmitterRole(t *testing.T) {
	svc, db, bill := setupPayments(t)

	householdUser := snowflake.ID(501)
	ctx := actor.WithActor(context.Background(), actor.Actor{UserID: householdUser, Role: actor.RoleHousehold})
	req := cashPayment(bill.ID, "10")
	req.Method = domain.MethodBankTransfer
	paid, err := svc.Record(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, paid.ReceivedBy)
	require.NotNil(t, paid.SubmittedBy)
	assert.Equal(t, householdUser, *paid.SubmittedBy)

	staffUser := snowflake.ID(502)
	ctx = actor.WithActor(context.Background(), actor.Actor{UserID: staffUser, Role: actor.RoleManager})
	recorded, err := svc.Record(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, recorded.ReceivedBy)
	assert.Equal(t, staffUser, *recorded.ReceivedBy)

	var rows []events.BillingEvent
	require.NoError(t, db.Where("event_type = ?", events.EventPaymentRecorded).Order("id asc").Find(&rows).Error)
	require.Len(t, rows, 2)

	var first, second events.PaymentRecordedPayload
	require.NoError(t, events.Decode(rows[0].Payload, &first))
	require.NoError(t, events.Decode(rows[1].Payload, &second))
	assert.Equal(t, string(domain.DirectionHouseholdPaid), first.Direction)
	assert.Equal(t, string(domain.DirectionStaffRecorded), second.Direction)
	assert.Equal(t, "40.00", first.RemainingBalance.StringFixed(2))
	assert.Equal(t, "30.00", second.RemainingBalance.StringFixed(2))
	assert.Equal(t, "Mukamana Family", first.HouseholdName)
	require.NotNil(t, first.HouseholdUserID)
}

func TestConcurrentPaymentsFlipBillOnce(t *testing.T) {
	svc, db, bill := setupPayments(t)

	amounts := []string{"10", "15", "25"}
	var wg sync.WaitGroup
	errsCh := make(chan error, len(amounts))
	for _, amount := range amounts {
		wg.Add(1)
		go func(amount string) {
			defer wg.Done()
			_, err := svc.Record(context.Background(), cashPayment(bill.ID, amount))
			errsCh <- err
		}(amount)
	}
	wg.Wait()
	close(errsCh)

	for err := range errsCh {
		require.NoError(t, err)
	}
	assert.Equal(t, billdomain.StatusPaid, billStatus(t, db, bill.ID))
	assert.Equal(t, int64(3), eventCount(t, db, events.EventPaymentRecorded))
	assert.Equal(t, int64(1), eventCount(t, db, events.EventBillPaid))

	var receipts []string
	require.NoError(t, db.Model(&domain.Payment{}).Order("receipt_number asc").Pluck("receipt_number", &receipts).Error)
	assert.Equal(t, []string{"RCP-202403-0001", "RCP-202403-0002", "RCP-202403-0003"}, receipts)
}

func TestListAndLookup(t *testing.T) {
	svc, _, bill := setupPayments(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, cashPayment(bill.ID, "10"))
	require.NoError(t, err)
	momo := cashPayment(bill.ID, "5")
	momo.Method = domain.MethodMobileMoney
	_, err = svc.Record(ctx, momo)
	require.NoError(t, err)

	list, err := svc.List(ctx, domain.ListPaymentRequest{BillID: bill.ID})
	require.NoError(t, err)
	assert.Len(t, list.Payments, 2)

	filtered, err := svc.List(ctx, domain.ListPaymentRequest{Method: domain.MethodMobileMoney})
	require.NoError(t, err)
	require.Len(t, filtered.Payments, 1)
	assert.Equal(t, "RCP-202403-0002", filtered.Payments[0].ReceiptNumber)

	found, err := svc.GetByReceipt(ctx, "RCP-202403-0001")
	require.NoError(t, err)
	assert.Equal(t, "10.00", found.AmountPaid.StringFixed(2))

	_, err = svc.GetByReceipt(ctx, "RCP-202403-0099")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
