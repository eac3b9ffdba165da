package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/internal/actor"
	"github.com/smallbiznis/aquabill/internal/clock"
	"github.com/smallbiznis/aquabill/internal/config"
	"github.com/smallbiznis/aquabill/internal/events"
	"github.com/smallbiznis/aquabill/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/aquabill/internal/payment/domain"
	userdomain "github.com/smallbiznis/aquabill/internal/user/domain"
	"github.com/smallbiznis/aquabill/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const smsHeader = "Village Water System"

type DispatcherParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Sender  domain.SMSSender
	Users   userdomain.Directory
	Billing *config.BillingConfigHolder `optional:"true"`
}

// Dispatcher turns domain events into SMS and in-app notifications.
type Dispatcher struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	sender  domain.SMSSender
	users   userdomain.Directory
	billing *config.BillingConfigHolder
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		db:      p.DB,
		log:     p.Log.Named("notification.dispatcher"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		sender:  p.Sender,
		users:   p.Users,
		billing: p.Billing,
	}
}

// Dispatch fans one event out to every channel. Channels are independent:
// a failed SMS does not stop the in-app notice, and all failures are
// reported together.
func (d *Dispatcher) Dispatch(ctx context.Context, env events.Envelope) error {
	var err error
	switch env.Type {
	case events.EventBillGenerated:
		err = d.billGenerated(ctx, env)
	case events.EventPaymentRecorded:
		err = d.paymentRecorded(ctx, env)
	case events.EventBillPaid:
		err = d.billPaid(ctx, env)
	case events.EventHouseholdRegistered:
		err = d.householdRegistered(ctx, env)
	case events.EventTariffChanged:
		err = d.tariffChanged(ctx, env)
	default:
		d.log.Debug("no notification for event type", zap.String("event_type", env.Type))
		return nil
	}
	if err != nil {
		return errs.Wrap(domain.ErrDispatch, "%s %s: %v", env.Type, env.ID, err)
	}
	return nil
}

func (d *Dispatcher) billGenerated(ctx context.Context, env events.Envelope) error {
	var p events.BillGeneratedPayload
	if err := events.Decode(env.Payload, &p); err != nil {
		return err
	}
	cfg := d.billing.Get()
	amount := money(p.TotalAmount, cfg.Currency)

	var err error
	if cfg.NotifySMS {
		message := strings.Join([]string{
			smsHeader,
			"Bill: " + p.BillNumber,
			"Amount: " + amount,
			"Period: " + p.BillingPeriod,
			"Due: " + p.DueDate,
			"Pay at office or via Mobile Money",
		}, "\n")
		err = multierr.Append(err, d.sendSMS(ctx, env.ID, p.HouseholdPhone, message, domain.SMSTypeBillGenerated))
	}
	if cfg.NotifyInApp && p.HouseholdUserID != nil {
		err = multierr.Append(err, d.notify(ctx, env.ID, []snowflake.ID{*p.HouseholdUserID}, domain.TypeNewBill,
			"New Bill Generated",
			fmt.Sprintf("New bill %s for %s. Due: %s", p.BillNumber, amount, p.DueDate),
			"/bills",
		))
	}
	return err
}

func (d *Dispatcher) paymentRecorded(ctx context.Context, env events.Envelope) error {
	var p events.PaymentRecordedPayload
	if err := events.Decode(env.Payload, &p); err != nil {
		return err
	}
	cfg := d.billing.Get()
	amount := money(p.AmountPaid, cfg.Currency)

	var err error
	if cfg.NotifySMS {
		phone := p.PayerPhone
		if phone == "" {
			phone = p.HouseholdPhone
		}
		message := strings.Join([]string{
			smsHeader,
			"Payment Received!",
			"Receipt: " + p.ReceiptNumber,
			"Amount: " + amount,
			"Method: " + paymentdomain.Method(p.Method).Label(),
			"Thank you!",
		}, "\n")
		err = multierr.Append(err, d.sendSMS(ctx, env.ID, phone, message, domain.SMSTypePaymentConfirmation))
	}
	if !cfg.NotifyInApp {
		return err
	}

	switch paymentdomain.Direction(p.Direction) {
	case paymentdomain.DirectionHouseholdPaid:
		staff, lookupErr := d.users.ListByRoles(ctx, actor.RoleAdmin, actor.RoleManager)
		if lookupErr != nil {
			return multierr.Append(err, lookupErr)
		}
		err = multierr.Append(err, d.notify(ctx, env.ID, userIDs(staff), domain.TypeHouseholdPayment,
			"New Household Payment",
			fmt.Sprintf("%s paid %s", p.HouseholdName, amount),
			"/payments",
		))
	case paymentdomain.DirectionStaffRecorded:
		if p.HouseholdUserID != nil {
			err = multierr.Append(err, d.notify(ctx, env.ID, []snowflake.ID{*p.HouseholdUserID}, domain.TypeAdminPayment,
				"Payment Recorded",
				fmt.Sprintf("Payment of %s recorded for bill %s", amount, p.BillNumber),
				"/payments",
			))
		}
	}
	return err
}

func (d *Dispatcher) billPaid(ctx context.Context, env events.Envelope) error {
	var p events.BillPaidPayload
	if err := events.Decode(env.Payload, &p); err != nil {
		return err
	}
	if !d.billing.Get().NotifyInApp {
		return nil
	}
	staff, err := d.users.ListByRoles(ctx, actor.RoleAdmin, actor.RoleManager)
	if err != nil {
		return err
	}
	return d.notify(ctx, env.ID, userIDs(staff), domain.TypeBillPaid,
		"Bill Paid",
		fmt.Sprintf("Bill %s for %s is fully paid", p.BillNumber, p.HouseholdCode),
		"/bills",
	)
}

func (d *Dispatcher) householdRegistered(ctx context.Context, env events.Envelope) error {
	var p events.HouseholdRegisteredPayload
	if err := events.Decode(env.Payload, &p); err != nil {
		return err
	}
	if !d.billing.Get().NotifyInApp {
		return nil
	}
	staff, err := d.users.ListByRoles(ctx, actor.RoleAdmin, actor.RoleManager)
	if err != nil {
		return err
	}
	return d.notify(ctx, env.ID, userIDs(staff), domain.TypeNewRegistration,
		"New Household Registered",
		fmt.Sprintf("%s (%s) registered", p.HouseholdName, p.HouseholdCode),
		"/households",
	)
}

func (d *Dispatcher) tariffChanged(ctx context.Context, env events.Envelope) error {
	var p events.TariffChangedPayload
	if err := events.Decode(env.Payload, &p); err != nil {
		return err
	}
	cfg := d.billing.Get()
	if !cfg.NotifyInApp {
		return nil
	}
	households, err := d.users.ListByRoles(ctx, actor.RoleHousehold)
	if err != nil {
		return err
	}
	action := "deactivated"
	if p.IsActive {
		action = "activated"
	}
	return d.notify(ctx, env.ID, userIDs(households), domain.TypeTariffChange,
		"Tariff Rate Updated",
		fmt.Sprintf("The tariff rate for %s has been %s. New rate: %s %s/liter.", p.RateName, action, cfg.Currency, p.RatePerLiter.StringFixed(2)),
		"/tariff-rates",
	)
}

// sendSMS skips phones that already received this event, then logs the
// attempt whatever its outcome.
func (d *Dispatcher) sendSMS(ctx context.Context, eventID snowflake.ID, phone, message string, kind domain.SMSType) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.ErrInvalidPhone
	}
	delivered, err := d.repo.SMSDelivered(ctx, d.db, eventID, phone)
	if err != nil {
		return err
	}
	if delivered {
		return nil
	}

	sendErr := d.sender.Send(ctx, phone, message)
	entry := domain.SMSLog{
		ID:          d.genID.Generate(),
		EventID:     &eventID,
		PhoneNumber: phone,
		Message:     message,
		Type:        kind,
		Status:      domain.SMSStatusSent,
		SentAt:      d.clock.Now(),
	}
	if sendErr != nil {
		entry.Status = domain.SMSStatusFailed
		entry.ErrorMessage = sendErr.Error()
	}
	if err := d.repo.InsertSMS(ctx, d.db, &entry); err != nil {
		return multierr.Append(sendErr, err)
	}
	return sendErr
}

func (d *Dispatcher) notify(ctx context.Context, eventID snowflake.ID, recipients []snowflake.ID, kind domain.Type, title, message, link string) error {
	now := d.clock.Now()
	var err error
	for _, userID := range recipients {
		item := domain.Notification{
			ID:        d.genID.Generate(),
			UserID:    userID,
			EventID:   &eventID,
			Type:      kind,
			Title:     title,
			Message:   message,
			Link:      link,
			CreatedAt: now,
		}
		err = multierr.Append(err, d.repo.InsertNotification(ctx, d.db, &item))
	}
	return err
}

func userIDs(users []userdomain.User) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func money(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(2) + " " + currency
}
