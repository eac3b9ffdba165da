package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"github.com/smallbiznis/aquabill/pkg/errs"
)

// SMSSender is the SMS transport.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

type ListNotificationsRequest struct {
	UserID     snowflake.ID
	UnreadOnly bool
	PageToken  string
	PageSize   int
}

type ListNotificationsResponse struct {
	pagination.PageInfo
	Notifications []Notification `json:"notifications"`
}

type ListSMSRequest struct {
	Type      SMSType   `validate:"omitempty,oneof=BILL_GENERATED PAYMENT_CONFIRMATION GENERAL"`
	Status    SMSStatus `validate:"omitempty,oneof=SENT FAILED"`
	Phone     string
	PageToken string
	PageSize  int
}

type ListSMSResponse struct {
	pagination.PageInfo
	Messages []SMSLog `json:"messages"`
}

type Service interface {
	List(ctx context.Context, req ListNotificationsRequest) (ListNotificationsResponse, error)
	UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error)
	MarkRead(ctx context.Context, userID, id snowflake.ID) error
	MarkAllRead(ctx context.Context, userID snowflake.ID) (int64, error)
	ListSMS(ctx context.Context, req ListSMSRequest) (ListSMSResponse, error)
}

var (
	ErrInvalidUser  = errs.New(errs.KindValidation, "invalid_user")
	ErrNotFound     = errs.New(errs.KindNotFound, "notification_not_found")
	ErrDispatch     = errs.New(errs.KindDispatch, "notification_dispatch_failed")
	ErrInvalidPhone = errs.New(errs.KindValidation, "invalid_phone")
)
