package events

import (
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Domain event types.
const (
	EventBillGenerated       = "bill.generated"
	EventPaymentRecorded     = "payment.recorded"
	EventBillPaid            = "bill.paid"
	EventHouseholdRegistered = "household.registered"
	EventTariffChanged       = "tariff.changed"
)

// DateLayout is the format of calendar dates inside payloads.
const DateLayout = "2006-01-02"

// BillGeneratedPayload carries what a notifier needs to announce a new bill.
type BillGeneratedPayload struct {
	BillID          snowflake.ID    `json:"bill_id"`
	BillNumber      string          `json:"bill_number"`
	HouseholdID     snowflake.ID    `json:"household_id"`
	HouseholdCode   string          `json:"household_code"`
	HouseholdName   string          `json:"household_name"`
	HouseholdPhone  string          `json:"household_phone"`
	HouseholdUserID *snowflake.ID   `json:"household_user_id,omitempty"`
	BillingPeriod   string          `json:"billing_period"`
	LitersConsumed  decimal.Decimal `json:"liters_consumed"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	BillDate        string          `json:"bill_date"`
	DueDate         string          `json:"due_date"`
}

func (p BillGeneratedPayload) ToMap() map[string]any {
	payload := map[string]any{
		"bill_id":         p.BillID.String(),
		"bill_number":     p.BillNumber,
		"household_id":    p.HouseholdID.String(),
		"household_code":  p.HouseholdCode,
		"household_name":  p.HouseholdName,
		"household_phone": p.HouseholdPhone,
		"billing_period":  p.BillingPeriod,
		"liters_consumed": p.LitersConsumed.String(),
		"total_amount":    p.TotalAmount.StringFixed(2),
		"bill_date":       p.BillDate,
		"due_date":        p.DueDate,
	}
	if p.HouseholdUserID != nil {
		payload["household_user_id"] = p.HouseholdUserID.String()
	}
	return payload
}

// PaymentRecordedPayload carries the payment and the direction of the
// notification it triggers.
type PaymentRecordedPayload struct {
	PaymentID            snowflake.ID    `json:"payment_id"`
	ReceiptNumber        string          `json:"receipt_number"`
	TransactionReference string          `json:"transaction_reference"`
	BillID               snowflake.ID    `json:"bill_id"`
	BillNumber           string          `json:"bill_number"`
	HouseholdID          snowflake.ID    `json:"household_id"`
	HouseholdCode        string          `json:"household_code"`
	HouseholdName        string          `json:"household_name"`
	HouseholdPhone       string          `json:"household_phone"`
	HouseholdUserID      *snowflake.ID   `json:"household_user_id,omitempty"`
	AmountPaid           decimal.Decimal `json:"amount_paid"`
	RemainingBalance     decimal.Decimal `json:"remaining_balance"`
	Method               string          `json:"method"`
	PayerName            string          `json:"payer_name"`
	PayerPhone           string          `json:"payer_phone,omitempty"`
	PaidAt               string          `json:"paid_at"`
	Direction            string          `json:"direction"`
	SubmittedBy          *snowflake.ID   `json:"submitted_by,omitempty"`
}

func (p PaymentRecordedPayload) ToMap() map[string]any {
	payload := map[string]any{
		"payment_id":            p.PaymentID.String(),
		"receipt_number":        p.ReceiptNumber,
		"transaction_reference": p.TransactionReference,
		"bill_id":               p.BillID.String(),
		"bill_number":           p.BillNumber,
		"household_id":          p.HouseholdID.String(),
		"household_code":        p.HouseholdCode,
		"household_name":        p.HouseholdName,
		"household_phone":       p.HouseholdPhone,
		"amount_paid":           p.AmountPaid.StringFixed(2),
		"remaining_balance":     p.RemainingBalance.StringFixed(2),
		"method":                p.Method,
		"payer_name":            p.PayerName,
		"paid_at":               p.PaidAt,
		"direction":             p.Direction,
	}
	if p.HouseholdUserID != nil {
		payload["household_user_id"] = p.HouseholdUserID.String()
	}
	if p.PayerPhone != "" {
		payload["payer_phone"] = p.PayerPhone
	}
	if p.SubmittedBy != nil {
		payload["submitted_by"] = p.SubmittedBy.String()
	}
	return payload
}

// BillPaidPayload is written once, by the payment that settled the bill.
type BillPaidPayload struct {
	BillID        snowflake.ID    `json:"bill_id"`
	BillNumber    string          `json:"bill_number"`
	HouseholdID   snowflake.ID    `json:"household_id"`
	HouseholdCode string          `json:"household_code"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	PaymentID     snowflake.ID    `json:"payment_id"`
}

func (p BillPaidPayload) ToMap() map[string]any {
	return map[string]any{
		"bill_id":        p.BillID.String(),
		"bill_number":    p.BillNumber,
		"household_id":   p.HouseholdID.String(),
		"household_code": p.HouseholdCode,
		"total_amount":   p.TotalAmount.StringFixed(2),
		"total_paid":     p.TotalPaid.StringFixed(2),
		"payment_id":     p.PaymentID.String(),
	}
}

type HouseholdRegisteredPayload struct {
	HouseholdID     snowflake.ID `json:"household_id"`
	HouseholdCode   string       `json:"household_code"`
	HouseholdName   string       `json:"household_name"`
	HeadOfHousehold string       `json:"head_of_household"`
	Phone           string       `json:"phone"`
}

func (p HouseholdRegisteredPayload) ToMap() map[string]any {
	return map[string]any{
		"household_id":      p.HouseholdID.String(),
		"household_code":    p.HouseholdCode,
		"household_name":    p.HouseholdName,
		"head_of_household": p.HeadOfHousehold,
		"phone":             p.Phone,
	}
}

type TariffChangedPayload struct {
	TariffID      snowflake.ID    `json:"tariff_id"`
	RateName      string          `json:"rate_name"`
	RatePerLiter  decimal.Decimal `json:"rate_per_liter"`
	EffectiveFrom string          `json:"effective_from"`
	IsActive      bool            `json:"is_active"`
}

func (p TariffChangedPayload) ToMap() map[string]any {
	return map[string]any{
		"tariff_id":      p.TariffID.String(),
		"rate_name":      p.RateName,
		"rate_per_liter": p.RatePerLiter.String(),
		"effective_from": p.EffectiveFrom,
		"is_active":      p.IsActive,
	}
}

// Decode unpacks a stored payload into one of the payload structs.
func Decode(payload map[string]any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
