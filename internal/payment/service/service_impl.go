package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/actor"
	billdomain "github.com/smallbiznis/aquabill/internal/bill/domain"
	"github.com/smallbiznis/aquabill/internal/clock"
	"github.com/smallbiznis/aquabill/internal/events"
	householddomain "github.com/smallbiznis/aquabill/internal/household/domain"
	obsmetrics "github.com/smallbiznis/aquabill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/aquabill/internal/payment/domain"
	"github.com/smallbiznis/aquabill/internal/sequence"
	sequencedomain "github.com/smallbiznis/aquabill/internal/sequence/domain"
	pkgdb "github.com/smallbiznis/aquabill/pkg/db"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"github.com/smallbiznis/aquabill/pkg/errs"
	"github.com/smallbiznis/aquabill/pkg/validate"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Bills      billdomain.Repository
	Households householddomain.Repository
	Issuer     sequencedomain.Issuer
	Outbox     *events.Outbox
	Emitter    *events.Emitter     `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	bills      billdomain.Repository
	households householddomain.Repository
	issuer     sequencedomain.Issuer
	outbox     *events.Outbox
	emitter    *events.Emitter
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		bills:      p.Bills,
		households: p.Households,
		issuer:     p.Issuer,
		outbox:     p.Outbox,
		emitter:    p.Emitter,
		obsMetrics: p.ObsMetrics,
	}
}

// Record applies a completed payment to a bill. The bill row is locked for
// the whole transaction, so the balance check and the paid-in-full decision
// both see every payment committed before this one.
func (s *Service) Record(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.Payment, error) {
	req.PayerName = strings.TrimSpace(req.PayerName)
	req.PayerPhone = strings.TrimSpace(req.PayerPhone)
	req.TransactionReference = strings.TrimSpace(req.TransactionReference)
	if err := validate.Struct(req); err != nil {
		return paymentdomain.Payment{}, err
	}
	if !req.AmountPaid.IsPositive() {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}
	submitter := actor.FromContextOrSystem(ctx)
	direction := directionFor(submitter)
	var receivedBy *snowflake.ID
	if submitter.IsStaff() {
		receivedBy = submitter.UserIDPtr()
	}

	receiptSeq := sequencedomain.IssueRequest{
		Namespace: sequencedomain.ReceiptNamespace(now),
		Seed:      sequence.ColumnSeed("payments", "receipt_number"),
	}
	referenceSeq := sequencedomain.IssueRequest{
		Namespace: sequencedomain.TransactionNamespace(now),
		Seed:      sequence.ColumnSeed("payments", "transaction_reference"),
	}

	var (
		payment  paymentdomain.Payment
		balance  paymentdomain.Balance
		eventIDs []snowflake.ID
		settled  bool
	)
	err := s.issuer.Transaction(ctx, func(tx *gorm.DB) error {
		eventIDs = eventIDs[:0]
		settled = false

		bill, err := s.bills.LockByID(ctx, tx, req.BillID)
		if err != nil {
			return err
		}
		if bill == nil {
			return paymentdomain.ErrBillNotFound
		}
		if bill.Status == billdomain.StatusCancelled {
			return errs.Wrap(paymentdomain.ErrBillNotPayable, "bill %s is %s", bill.BillNumber, bill.Status)
		}

		paid, err := s.repo.SumCompleted(ctx, tx, bill.ID)
		if err != nil {
			return err
		}
		remaining := paymentdomain.NewBalance(bill.ID, bill.TotalAmount, paid).Remaining
		if req.AmountPaid.GreaterThan(remaining) {
			return &paymentdomain.OverpaymentError{Remaining: remaining}
		}
		if !bill.Status.Payable() {
			return errs.Wrap(paymentdomain.ErrBillNotPayable, "bill %s is %s", bill.BillNumber, bill.Status)
		}

		household, err := s.households.FindByID(ctx, tx, bill.HouseholdID)
		if err != nil {
			return err
		}
		if household == nil {
			return paymentdomain.ErrHouseholdNotFound
		}

		issued := []sequencedomain.IssueRequest{receiptSeq}
		reference := req.TransactionReference
		if reference != "" {
			existing, err := s.repo.FindByReference(ctx, tx, reference)
			if err != nil {
				return err
			}
			if existing != nil {
				return paymentdomain.ErrDuplicateReference
			}
		} else {
			reference, err = s.issuer.Issue(ctx, tx, referenceSeq)
			if err != nil {
				return err
			}
			issued = append(issued, referenceSeq)
		}

		receipt, err := s.issuer.Issue(ctx, tx, receiptSeq)
		if err != nil {
			return err
		}

		payment = paymentdomain.Payment{
			ID:                   s.genID.Generate(),
			ReceiptNumber:        receipt,
			BillID:               bill.ID,
			AmountPaid:           req.AmountPaid,
			PaidAt:               paidAt,
			Method:               req.Method,
			TransactionReference: reference,
			PayerName:            req.PayerName,
			PayerPhone:           req.PayerPhone,
			Status:               paymentdomain.StatusCompleted,
			ReceivedBy:           receivedBy,
			SubmittedBy:          submitter.UserIDPtr(),
			CreatedAt:            now,
		}
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				// a supplied reference that raced is caught by the lookup on retry
				return sequencedomain.Conflict(issued...)
			}
			return err
		}

		totalPaid, err := s.repo.SumCompleted(ctx, tx, bill.ID)
		if err != nil {
			return err
		}
		balance = paymentdomain.NewBalance(bill.ID, bill.TotalAmount, totalPaid)

		recorded := events.PaymentRecordedPayload{
			PaymentID:            payment.ID,
			ReceiptNumber:        payment.ReceiptNumber,
			TransactionReference: payment.TransactionReference,
			BillID:               bill.ID,
			BillNumber:           bill.BillNumber,
			HouseholdID:          household.ID,
			HouseholdCode:        household.Code,
			HouseholdName:        household.Name,
			HouseholdPhone:       household.Phone,
			HouseholdUserID:      household.UserID,
			AmountPaid:           payment.AmountPaid,
			RemainingBalance:     balance.Remaining,
			Method:               string(payment.Method),
			PayerName:            payment.PayerName,
			PayerPhone:           payment.PayerPhone,
			PaidAt:               payment.PaidAt.Format(events.DateLayout),
			Direction:            string(direction),
			SubmittedBy:          payment.SubmittedBy,
		}
		recordedID, err := s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventPaymentRecorded,
			Payload:   recorded.ToMap(),
			DedupeKey: events.DedupeKey(events.EventPaymentRecorded, payment.ID),
		})
		if err != nil {
			return err
		}
		eventIDs = append(eventIDs, recordedID)

		if !billdomain.IsSettled(bill.TotalAmount, totalPaid) {
			return nil
		}
		flipped, err := s.bills.MarkPaid(ctx, tx, bill.ID, now)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}
		settled = true

		paidPayload := events.BillPaidPayload{
			BillID:        bill.ID,
			BillNumber:    bill.BillNumber,
			HouseholdID:   household.ID,
			HouseholdCode: household.Code,
			TotalAmount:   bill.TotalAmount,
			TotalPaid:     totalPaid,
			PaymentID:     payment.ID,
		}
		paidID, err := s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventBillPaid,
			Payload:   paidPayload.ToMap(),
			DedupeKey: events.DedupeKey(events.EventBillPaid, bill.ID),
		})
		if err != nil {
			return err
		}
		eventIDs = append(eventIDs, paidID)
		return nil
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	s.obsMetrics.RecordPayment(ctx, string(payment.Method))
	if settled {
		s.obsMetrics.RecordBillPaid(ctx)
	}
	s.log.Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("receipt_number", payment.ReceiptNumber),
		zap.String("bill_id", payment.BillID.String()),
		zap.String("amount_paid", payment.AmountPaid.StringFixed(2)),
		zap.String("remaining", balance.Remaining.StringFixed(2)),
		zap.String("direction", string(direction)),
		zap.Bool("bill_paid", settled),
	)

	s.emitter.Deliver(ctx, eventIDs...)
	return payment, nil
}

func (s *Service) Balance(ctx context.Context, billID snowflake.ID) (paymentdomain.Balance, error) {
	bill, err := s.bills.FindByID(ctx, s.db, billID)
	if err != nil {
		return paymentdomain.Balance{}, err
	}
	if bill == nil {
		return paymentdomain.Balance{}, paymentdomain.ErrBillNotFound
	}
	paid, err := s.repo.SumCompleted(ctx, s.db, billID)
	if err != nil {
		return paymentdomain.Balance{}, err
	}
	return paymentdomain.NewBalance(bill.ID, bill.TotalAmount, paid), nil
}

func (s *Service) GetByReceipt(ctx context.Context, receiptNumber string) (paymentdomain.Payment, error) {
	item, err := s.repo.FindByReceipt(ctx, s.db, strings.TrimSpace(receiptNumber))
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if item == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListPaymentRequest) (paymentdomain.ListPaymentResponse, error) {
	if err := validate.Struct(req); err != nil {
		return paymentdomain.ListPaymentResponse{}, err
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, paymentdomain.ListPaymentFilter{
		BillID: req.BillID,
		Method: req.Method,
		Status: req.Status,
	}, page)
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, err
	}

	items, pageInfo := pagination.BuildPageInfo(items, page, func(item *paymentdomain.Payment) snowflake.ID {
		return item.ID
	})
	payments := make([]paymentdomain.Payment, 0, len(items))
	for _, item := range items {
		payments = append(payments, *item)
	}
	return paymentdomain.ListPaymentResponse{PageInfo: pageInfo, Payments: payments}, nil
}

// directionFor decides who is told about a payment from the submitter's
// role, never from the payment method.
func directionFor(submitter actor.Actor) paymentdomain.Direction {
	if submitter.Role == actor.RoleHousehold {
		return paymentdomain.DirectionHouseholdPaid
	}
	return paymentdomain.DirectionStaffRecorded
}
