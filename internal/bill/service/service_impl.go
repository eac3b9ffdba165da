package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/internal/actor"
	"github.com/smallbiznis/aquabill/internal/bill/domain"
	"github.com/smallbiznis/aquabill/internal/billingperiod"
	"github.com/smallbiznis/aquabill/internal/clock"
	"github.com/smallbiznis/aquabill/internal/config"
	"github.com/smallbiznis/aquabill/internal/events"
	householddomain "github.com/smallbiznis/aquabill/internal/household/domain"
	"github.com/smallbiznis/aquabill/internal/lock"
	obsmetrics "github.com/smallbiznis/aquabill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/aquabill/internal/payment/domain"
	"github.com/smallbiznis/aquabill/internal/sequence"
	sequencedomain "github.com/smallbiznis/aquabill/internal/sequence/domain"
	tariffdomain "github.com/smallbiznis/aquabill/internal/tariff/domain"
	usagedomain "github.com/smallbiznis/aquabill/internal/usage/domain"
	pkgdb "github.com/smallbiznis/aquabill/pkg/db"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"github.com/smallbiznis/aquabill/pkg/errs"
	"github.com/smallbiznis/aquabill/pkg/telemetry/correlation"
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
	Billing    *config.BillingConfigHolder `optional:"true"`
	Repo       domain.Repository
	Households householddomain.Repository
	Usage      usagedomain.Repository
	Tariffs    tariffdomain.Repository
	Payments   paymentdomain.Repository
	Issuer     sequencedomain.Issuer
	Outbox     *events.Outbox
	Emitter    *events.Emitter     `optional:"true"`
	Locker     domain.Locker       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billing    *config.BillingConfigHolder
	repo       domain.Repository
	households householddomain.Repository
	usage      usagedomain.Repository
	tariffs    tariffdomain.Repository
	payments   paymentdomain.Repository
	issuer     sequencedomain.Issuer
	outbox     *events.Outbox
	emitter    *events.Emitter
	locker     domain.Locker
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("bill.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		billing:    p.Billing,
		repo:       p.Repo,
		households: p.Households,
		usage:      p.Usage,
		tariffs:    p.Tariffs,
		payments:   p.Payments,
		issuer:     p.Issuer,
		outbox:     p.Outbox,
		emitter:    p.Emitter,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}
}

type generateInput struct {
	householdID snowflake.ID
	period      billingperiod.Period
	penalty     decimal.Decimal
	discount    decimal.Decimal
	dueDate     *time.Time
}

func (s *Service) Generate(ctx context.Context, req domain.GenerateBillRequest) (domain.Bill, error) {
	if err := validate.Struct(req); err != nil {
		return domain.Bill{}, err
	}
	period, err := billingperiod.Parse(req.BillingPeriod)
	if err != nil {
		return domain.Bill{}, err
	}

	bill, eventID, err := s.generate(ctx, generateInput{
		householdID: req.HouseholdID,
		period:      period,
		penalty:     req.PenaltyAmount,
		discount:    req.DiscountAmount,
		dueDate:     req.DueDate,
	})
	if err != nil {
		return domain.Bill{}, err
	}

	s.emitter.Deliver(ctx, eventID)
	return bill, nil
}

// GenerateForPeriod runs each household in its own transaction. Failures
// become skips so one household never blocks the rest.
func (s *Service) GenerateForPeriod(ctx context.Context, req domain.GenerateBatchRequest) (domain.BatchResult, error) {
	if err := validate.Struct(req); err != nil {
		return domain.BatchResult{}, err
	}
	period, err := billingperiod.Parse(req.BillingPeriod)
	if err != nil {
		return domain.BatchResult{}, err
	}
	ctx, _ = correlation.Ensure(ctx)

	result := domain.BatchResult{
		BillingPeriod: period.String(),
		Created:       []domain.Bill{},
		Skipped:       []domain.Skip{},
	}

	if s.locker != nil {
		key := lock.BatchKey(period.String())
		token, ok, err := s.locker.TryLock(ctx, key, s.billing.Get().BatchLockTTL)
		if err != nil {
			return result, err
		}
		if !ok {
			return result, domain.ErrBatchInProgress
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.log.Warn("failed to release batch lock", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	active, err := s.tariffs.ListActive(ctx, s.db)
	if err != nil {
		return result, err
	}
	if _, err := tariffdomain.SingleActive(active); err != nil {
		result.Skipped = append(result.Skipped, domain.Skip{Code: errorCode(err), Reason: tariffReason(err)})
		s.obsMetrics.RecordBillSkipped(ctx, errorCode(err))
		s.log.Warn("batch bill generation aborted",
			zap.String("billing_period", result.BillingPeriod),
			zap.Error(err),
		)
		return result, err
	}

	filter := householddomain.ListHouseholdFilter{IDs: req.HouseholdIDs}
	if len(req.HouseholdIDs) == 0 {
		filter.Status = householddomain.StatusActive
	}
	households, err := s.households.ListAll(ctx, s.db, filter)
	if err != nil {
		return result, err
	}
	result.Skipped = append(result.Skipped, missingHouseholds(req.HouseholdIDs, households)...)

	for _, household := range households {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		bill, eventID, err := s.generate(ctx, generateInput{householdID: household.ID, period: period})
		if err != nil {
			skip := skipFor(household, err)
			result.Skipped = append(result.Skipped, skip)
			s.obsMetrics.RecordBillSkipped(ctx, skip.Code)
			if errs.KindOf(err) == errs.KindInternal {
				s.log.Error("bill generation failed",
					zap.String("household_code", household.Code),
					zap.String("billing_period", result.BillingPeriod),
					zap.Error(err),
				)
			}
			continue
		}

		s.emitter.Deliver(ctx, eventID)
		result.Created = append(result.Created, bill)
	}

	s.log.Info("batch bill generation finished",
		zap.String("billing_period", result.BillingPeriod),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func (s *Service) generate(ctx context.Context, in generateInput) (domain.Bill, snowflake.ID, error) {
	if in.penalty.IsNegative() || in.discount.IsNegative() {
		return domain.Bill{}, 0, errs.Wrap(domain.ErrInvalidAdjustment, "penalty and discount cannot be negative")
	}

	now := s.clock.Now()
	billDate := dateOf(now)
	dueDate, err := s.resolveDueDate(billDate, in.dueDate)
	if err != nil {
		return domain.Bill{}, 0, err
	}

	seq := sequencedomain.IssueRequest{
		Namespace: sequencedomain.BillNamespace(now),
		Seed:      sequence.ColumnSeed("bills", "bill_number"),
	}
	generatedBy := actor.FromContextOrSystem(ctx).UserIDPtr()

	var (
		bill    domain.Bill
		eventID snowflake.ID
	)
	err = s.issuer.Transaction(ctx, func(tx *gorm.DB) error {
		active, err := s.tariffs.ListActive(ctx, tx)
		if err != nil {
			return err
		}
		tariff, err := tariffdomain.SingleActive(active)
		if err != nil {
			return err
		}

		household, err := s.households.LockByID(ctx, tx, in.householdID)
		if err != nil {
			return err
		}
		if household == nil {
			return domain.ErrHouseholdNotFound
		}
		if !household.Billable() {
			return errs.Wrap(domain.ErrHouseholdNotActive, "%s is %s", household.Code, household.Status)
		}

		existing, err := s.repo.FindForPeriod(ctx, tx, household.ID, in.period.String())
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrBillAlreadyExists
		}

		usage, err := s.usage.LockForPeriod(ctx, tx, household.ID, in.period.String())
		if err != nil {
			return err
		}
		if usage == nil {
			return domain.ErrNoUsage
		}
		if usage.Status == usagedomain.StatusBilled {
			return domain.ErrUsageAlreadyBilled
		}

		amounts := domain.Compute(usage.LitersUsed, tariff.RatePerLiter, in.penalty, in.discount)
		if amounts.TotalAmount.IsNegative() {
			return errs.Wrap(domain.ErrInvalidAdjustment, "discount exceeds subtotal plus penalty")
		}

		number, err := s.issuer.Issue(ctx, tx, seq)
		if err != nil {
			return err
		}

		usageID := usage.ID
		tariffID := tariff.ID
		bill = domain.Bill{
			ID:             s.genID.Generate(),
			BillNumber:     number,
			HouseholdID:    household.ID,
			UsageID:        &usageID,
			TariffID:       &tariffID,
			LitersConsumed: amounts.LitersConsumed,
			RateApplied:    amounts.RateApplied,
			Subtotal:       amounts.Subtotal,
			PenaltyAmount:  amounts.PenaltyAmount,
			DiscountAmount: amounts.DiscountAmount,
			TotalAmount:    amounts.TotalAmount,
			BillDate:       billDate,
			DueDate:        dueDate,
			BillingPeriod:  in.period.String(),
			Status:         domain.StatusPending,
			GeneratedBy:    generatedBy,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		inserted, err := s.repo.Insert(ctx, tx, &bill)
		if err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return sequencedomain.Conflict(seq)
			}
			return err
		}
		if !inserted {
			// MySQL reports any swallowed unique violation as zero rows,
			// including a bill_number collision.
			existing, err := s.repo.FindForPeriod(ctx, tx, household.ID, in.period.String())
			if err != nil {
				return err
			}
			if existing != nil {
				return domain.ErrBillAlreadyExists
			}
			return sequencedomain.Conflict(seq)
		}

		moved, err := s.usage.Transition(ctx, tx, usage.ID,
			[]usagedomain.Status{usagedomain.StatusPending, usagedomain.StatusVerified},
			usagedomain.StatusBilled, now)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrUsageAlreadyBilled
		}

		payload := events.BillGeneratedPayload{
			BillID:          bill.ID,
			BillNumber:      bill.BillNumber,
			HouseholdID:     household.ID,
			HouseholdCode:   household.Code,
			HouseholdName:   household.Name,
			HouseholdPhone:  household.Phone,
			HouseholdUserID: household.UserID,
			BillingPeriod:   bill.BillingPeriod,
			LitersConsumed:  bill.LitersConsumed,
			TotalAmount:     bill.TotalAmount,
			BillDate:        bill.BillDate.Format(events.DateLayout),
			DueDate:         bill.DueDate.Format(events.DateLayout),
		}
		eventID, err = s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventBillGenerated,
			Payload:   payload.ToMap(),
			DedupeKey: events.DedupeKey(events.EventBillGenerated, bill.ID),
		})
		return err
	})
	if err != nil {
		return domain.Bill{}, 0, err
	}

	s.obsMetrics.RecordBillGenerated(ctx)
	s.log.Info("bill generated",
		zap.String("bill_id", bill.ID.String()),
		zap.String("bill_number", bill.BillNumber),
		zap.String("household_id", bill.HouseholdID.String()),
		zap.String("billing_period", bill.BillingPeriod),
		zap.String("total_amount", bill.TotalAmount.StringFixed(2)),
	)
	return bill, eventID, nil
}

func (s *Service) resolveDueDate(billDate time.Time, requested *time.Time) (time.Time, error) {
	cfg := s.billing.Get()
	if requested == nil {
		return billDate.AddDate(0, 0, cfg.DefaultDueDays), nil
	}

	due := dateOf(*requested)
	days := int(due.Sub(billDate).Hours() / 24)
	if days < cfg.MinDueDays || days > cfg.MaxDueDays {
		return time.Time{}, errs.Wrap(domain.ErrInvalidDueDate,
			"due date must be %d to %d days after the bill date", cfg.MinDueDays, cfg.MaxDueDays)
	}
	return due, nil
}

// MarkOverdue moves a pending bill to overdue. Repeating it is a no-op.
func (s *Service) MarkOverdue(ctx context.Context, id snowflake.ID) (domain.Bill, error) {
	var bill domain.Bill
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		switch current.Status {
		case domain.StatusOverdue:
			bill = *current
			return nil
		case domain.StatusPending:
		default:
			return errs.Wrap(domain.ErrInvalidTransition, "%s to %s", current.Status, domain.StatusOverdue)
		}

		now := s.clock.Now()
		moved, err := s.repo.Transition(ctx, tx, id, []domain.Status{domain.StatusPending}, domain.StatusOverdue, now)
		if err != nil {
			return err
		}
		if !moved {
			return errs.Wrap(domain.ErrInvalidTransition, "%s to %s", current.Status, domain.StatusOverdue)
		}
		current.Status = domain.StatusOverdue
		current.UpdatedAt = now
		bill = *current
		return nil
	})
	if err != nil {
		return domain.Bill{}, err
	}
	return bill, nil
}

// Cancel voids an unpaid bill. Bills that already received a completed
// payment cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (domain.Bill, error) {
	var bill domain.Bill
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.Status == domain.StatusCancelled {
			bill = *current
			return nil
		}
		if !current.Status.Payable() {
			return errs.Wrap(domain.ErrInvalidTransition, "%s to %s", current.Status, domain.StatusCancelled)
		}

		count, err := s.payments.CountCompleted(ctx, tx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrHasCompletedPayments
		}

		now := s.clock.Now()
		moved, err := s.repo.Transition(ctx, tx, id,
			[]domain.Status{domain.StatusPending, domain.StatusOverdue}, domain.StatusCancelled, now)
		if err != nil {
			return err
		}
		if !moved {
			return errs.Wrap(domain.ErrInvalidTransition, "%s to %s", current.Status, domain.StatusCancelled)
		}
		current.Status = domain.StatusCancelled
		current.UpdatedAt = now
		bill = *current
		return nil
	})
	if err != nil {
		return domain.Bill{}, err
	}

	s.log.Info("bill cancelled",
		zap.String("bill_id", bill.ID.String()),
		zap.String("bill_number", bill.BillNumber),
	)
	return bill, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Bill, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Bill{}, err
	}
	if item == nil {
		return domain.Bill{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) GetByNumber(ctx context.Context, billNumber string) (domain.Bill, error) {
	item, err := s.repo.FindByNumber(ctx, s.db, billNumber)
	if err != nil {
		return domain.Bill{}, err
	}
	if item == nil {
		return domain.Bill{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListBillRequest) (domain.ListBillResponse, error) {
	if err := validate.Struct(req); err != nil {
		return domain.ListBillResponse{}, err
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, domain.ListBillFilter{
		HouseholdID:   req.HouseholdID,
		BillingPeriod: req.BillingPeriod,
		Status:        req.Status,
	}, page)
	if err != nil {
		return domain.ListBillResponse{}, err
	}

	items, pageInfo := pagination.BuildPageInfo(items, page, func(item *domain.Bill) snowflake.ID {
		return item.ID
	})
	bills := make([]domain.Bill, 0, len(items))
	for _, item := range items {
		bills = append(bills, *item)
	}
	return domain.ListBillResponse{PageInfo: pageInfo, Bills: bills}, nil
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func skipFor(household *householddomain.Household, err error) domain.Skip {
	skip := domain.Skip{
		HouseholdID:   household.ID,
		HouseholdCode: household.Code,
		Code:          errorCode(err),
	}
	switch {
	case errors.Is(err, domain.ErrBillAlreadyExists):
		skip.Reason = fmt.Sprintf("Bill already exists for %s", household.Code)
	case errors.Is(err, domain.ErrNoUsage):
		skip.Reason = fmt.Sprintf("No usage record found for %s", household.Code)
	case errors.Is(err, domain.ErrHouseholdNotActive):
		skip.Reason = fmt.Sprintf("Household %s is not active", household.Code)
	case errors.Is(err, domain.ErrUsageAlreadyBilled):
		skip.Reason = fmt.Sprintf("Usage for %s is already billed", household.Code)
	case errors.Is(err, tariffdomain.ErrNoActiveTariff), errors.Is(err, tariffdomain.ErrMultipleActiveTariffs):
		skip.Reason = tariffReason(err)
	default:
		skip.Reason = fmt.Sprintf("Error for %s: %v", household.Code, err)
	}
	return skip
}

func tariffReason(err error) string {
	if errors.Is(err, tariffdomain.ErrMultipleActiveTariffs) {
		return "Multiple active tariff rates found"
	}
	return "No active tariff rate found"
}

func missingHouseholds(requested []snowflake.ID, found []*householddomain.Household) []domain.Skip {
	if len(requested) == 0 {
		return nil
	}
	seen := make(map[snowflake.ID]struct{}, len(found))
	for _, household := range found {
		seen[household.ID] = struct{}{}
	}
	var skips []domain.Skip
	for _, id := range requested {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		skips = append(skips, domain.Skip{
			HouseholdID: id,
			Code:        domain.ErrHouseholdNotFound.Code(),
			Reason:      fmt.Sprintf("Household %s not found", id),
		})
	}
	return skips
}

func errorCode(err error) string {
	var classified *errs.Error
	if errors.As(err, &classified) {
		return classified.Code()
	}
	return string(errs.KindInternal)
}
