package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/actor"
	"github.com/smallbiznis/aquabill/internal/clock"
	"github.com/smallbiznis/aquabill/internal/events"
	"github.com/smallbiznis/aquabill/internal/tariff/domain"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"github.com/smallbiznis/aquabill/pkg/validate"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Outbox  *events.Outbox
	Emitter *events.Emitter `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	outbox  *events.Outbox
	emitter *events.Emitter
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("tariff.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		outbox:  p.Outbox,
		emitter: p.Emitter,
	}
}

// Create stores a new rate. An active rate replaces the current one in the
// same transaction so at most one rate is ever active.
func (s *Service) Create(ctx context.Context, req domain.CreateTariffRequest) (domain.Rate, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return domain.Rate{}, err
	}
	if !req.RatePerLiter.IsPositive() {
		return domain.Rate{}, domain.ErrInvalidRate
	}

	now := s.clock.Now()
	effectiveFrom := req.EffectiveFrom
	if effectiveFrom.IsZero() {
		effectiveFrom = now
	}
	if req.EffectiveTo != nil && req.EffectiveTo.Before(effectiveFrom) {
		return domain.Rate{}, domain.ErrInvalidEffectiveRange
	}

	rate := domain.Rate{
		ID:            s.genID.Generate(),
		Name:          req.Name,
		RatePerLiter:  req.RatePerLiter,
		EffectiveFrom: effectiveFrom,
		EffectiveTo:   req.EffectiveTo,
		IsActive:      req.Activate,
		SetBy:         actor.FromContextOrSystem(ctx).UserIDPtr(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var eventID snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rate.IsActive {
			if err := s.repo.DeactivateAllExcept(ctx, tx, rate.ID, now); err != nil {
				return err
			}
		}
		if err := s.repo.Insert(ctx, tx, &rate); err != nil {
			return err
		}
		if !rate.IsActive {
			return nil
		}
		var err error
		eventID, err = s.publishChange(ctx, tx, rate)
		return err
	})
	if err != nil {
		return domain.Rate{}, err
	}

	s.emitter.Deliver(ctx, eventID)
	return rate, nil
}

func (s *Service) Activate(ctx context.Context, id snowflake.ID) (domain.Rate, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) (domain.Rate, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) setActive(ctx context.Context, id snowflake.ID, active bool) (domain.Rate, error) {
	var (
		rate    domain.Rate
		eventID snowflake.ID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		rate = *item
		if rate.IsActive == active {
			return nil
		}

		now := s.clock.Now()
		if active {
			if err := s.repo.DeactivateAllExcept(ctx, tx, rate.ID, now); err != nil {
				return err
			}
		}
		if err := s.repo.SetActive(ctx, tx, rate.ID, active, now); err != nil {
			return err
		}
		rate.IsActive = active
		rate.UpdatedAt = now

		eventID, err = s.publishChange(ctx, tx, rate)
		return err
	})
	if err != nil {
		return domain.Rate{}, err
	}

	s.log.Info("tariff rate changed",
		zap.String("tariff_id", rate.ID.String()),
		zap.Bool("is_active", rate.IsActive),
	)
	s.emitter.Deliver(ctx, eventID)
	return rate, nil
}

func (s *Service) GetActive(ctx context.Context) (domain.Rate, error) {
	active, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return domain.Rate{}, err
	}
	rate, err := domain.SingleActive(active)
	if err != nil {
		return domain.Rate{}, err
	}
	return *rate, nil
}

func (s *Service) List(ctx context.Context, req domain.ListTariffRequest) (domain.ListTariffResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, req.ActiveOnly, page)
	if err != nil {
		return domain.ListTariffResponse{}, err
	}
	items, pageInfo := pagination.BuildPageInfo(items, page, func(item *domain.Rate) snowflake.ID {
		return item.ID
	})
	rates := make([]domain.Rate, 0, len(items))
	for _, item := range items {
		rates = append(rates, *item)
	}
	return domain.ListTariffResponse{PageInfo: pageInfo, Rates: rates}, nil
}

func (s *Service) publishChange(ctx context.Context, tx *gorm.DB, rate domain.Rate) (snowflake.ID, error) {
	payload := events.TariffChangedPayload{
		TariffID:      rate.ID,
		RateName:      rate.Name,
		RatePerLiter:  rate.RatePerLiter,
		EffectiveFrom: rate.EffectiveFrom.Format(events.DateLayout),
		IsActive:      rate.IsActive,
	}
	return s.outbox.PublishTx(ctx, tx, events.Event{
		Type:      events.EventTariffChanged,
		Payload:   payload.ToMap(),
		DedupeKey: events.DedupeKey(events.EventTariffChanged, s.genID.Generate()),
	})
}
