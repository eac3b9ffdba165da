package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/notification/domain"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"github.com/smallbiznis/aquabill/pkg/validate"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("notification.service"),
		repo: p.Repo,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListNotificationsRequest) (domain.ListNotificationsResponse, error) {
	if req.UserID == 0 {
		return domain.ListNotificationsResponse{}, domain.ErrInvalidUser
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.ListNotifications(ctx, s.db, req.UserID, req.UnreadOnly, page)
	if err != nil {
		return domain.ListNotificationsResponse{}, err
	}

	items, pageInfo := pagination.BuildPageInfo(items, page, func(item *domain.Notification) snowflake.ID {
		return item.ID
	})
	out := make([]domain.Notification, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return domain.ListNotificationsResponse{PageInfo: pageInfo, Notifications: out}, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	return s.repo.CountUnread(ctx, s.db, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id snowflake.ID) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	found, err := s.repo.MarkRead(ctx, s.db, userID, id)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	return s.repo.MarkAllRead(ctx, s.db, userID)
}

func (s *Service) ListSMS(ctx context.Context, req domain.ListSMSRequest) (domain.ListSMSResponse, error) {
	if err := validate.Struct(req); err != nil {
		return domain.ListSMSResponse{}, err
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.ListSMS(ctx, s.db, domain.SMSFilter{
		Type:   req.Type,
		Status: req.Status,
		Phone:  req.Phone,
	}, page)
	if err != nil {
		return domain.ListSMSResponse{}, err
	}

	items, pageInfo := pagination.BuildPageInfo(items, page, func(item *domain.SMSLog) snowflake.ID {
		return item.ID
	})
	out := make([]domain.SMSLog, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return domain.ListSMSResponse{PageInfo: pageInfo, Messages: out}, nil
}
