package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/actor"
	"github.com/smallbiznis/aquabill/internal/clock"
	"github.com/smallbiznis/aquabill/internal/events"
	"github.com/smallbiznis/aquabill/internal/household/domain"
	"github.com/smallbiznis/aquabill/internal/sequence"
	sequencedomain "github.com/smallbiznis/aquabill/internal/sequence/domain"
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
	Issuer  sequencedomain.Issuer
	Outbox  *events.Outbox
	Emitter *events.Emitter `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	issuer  sequencedomain.Issuer
	outbox  *events.Outbox
	emitter *events.Emitter
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("household.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		issuer:  p.Issuer,
		outbox:  p.Outbox,
		emitter: p.Emitter,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterHouseholdRequest) (domain.Household, error) {
	req = normalizeRegister(req)
	if err := validate.Struct(req); err != nil {
		return domain.Household{}, err
	}

	now := s.clock.Now()
	connectedAt := req.ConnectionDate
	if connectedAt.IsZero() {
		connectedAt = now
	}
	var meterNumber *string
	if req.MeterNumber != "" {
		meterNumber = &req.MeterNumber
	}
	seq := sequencedomain.IssueRequest{
		Namespace: sequencedomain.HouseholdNamespace(now),
		Seed:      sequence.ColumnSeed("households", "household_code"),
	}

	var (
		household domain.Household
		eventID   snowflake.ID
	)
	err := s.issuer.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.ensureUnique(ctx, tx, req, meterNumber); err != nil {
			return err
		}

		code, err := s.issuer.Issue(ctx, tx, seq)
		if err != nil {
			return err
		}

		household = domain.Household{
			ID:              s.genID.Generate(),
			Code:            code,
			Name:            req.Name,
			HeadOfHousehold: req.HeadOfHousehold,
			NationalID:      req.NationalID,
			Address:         req.Address,
			Sector:          req.Sector,
			Cell:            req.Cell,
			Village:         req.Village,
			Phone:           req.Phone,
			Email:           req.Email,
			Members:         req.Members,
			MeterNumber:     meterNumber,
			ConnectionDate:  connectedAt,
			Status:          domain.StatusActive,
			UserID:          req.UserID,
			RegisteredBy:    actor.FromContextOrSystem(ctx).UserIDPtr(),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		inserted, err := s.repo.Insert(ctx, tx, &household)
		if err != nil {
			return err
		}
		if !inserted {
			// uniqueness was checked above, so the code is what collided
			return sequencedomain.Conflict(seq)
		}

		payload := events.HouseholdRegisteredPayload{
			HouseholdID:     household.ID,
			HouseholdCode:   household.Code,
			HouseholdName:   household.Name,
			HeadOfHousehold: household.HeadOfHousehold,
			Phone:           household.Phone,
		}
		eventID, err = s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventHouseholdRegistered,
			Payload:   payload.ToMap(),
			DedupeKey: events.DedupeKey(events.EventHouseholdRegistered, household.ID),
		})
		return err
	})
	if err != nil {
		return domain.Household{}, err
	}

	s.log.Info("household registered",
		zap.String("household_id", household.ID.String()),
		zap.String("household_code", household.Code),
	)
	s.emitter.Deliver(ctx, eventID)
	return household, nil
}

func (s *Service) ensureUnique(ctx context.Context, tx *gorm.DB, req domain.RegisterHouseholdRequest, meterNumber *string) error {
	existing, err := s.repo.FindByNationalID(ctx, tx, req.NationalID)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrNationalIDTaken
	}
	if meterNumber != nil {
		existing, err = s.repo.FindByMeterNumber(ctx, tx, *meterNumber)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrMeterNumberTaken
		}
	}
	if req.UserID != nil {
		existing, err = s.repo.FindByUserID(ctx, tx, *req.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrUserAlreadyLinked
		}
	}
	return nil
}

func (s *Service) UpdateStatus(ctx context.Context, req domain.UpdateStatusRequest) (domain.Household, error) {
	if err := validate.Struct(req); err != nil {
		return domain.Household{}, err
	}
	if !req.Status.Valid() {
		return domain.Household{}, domain.ErrInvalidStatus
	}

	var household domain.Household
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.LockByID(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		household = *item
		if household.Status == req.Status {
			return nil
		}
		household.Status = req.Status
		household.UpdatedAt = s.clock.Now()
		return s.repo.UpdateStatus(ctx, tx, &household)
	})
	if err != nil {
		return domain.Household{}, err
	}
	return household, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Household, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Household{}, err
	}
	if item == nil {
		return domain.Household{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (domain.Household, error) {
	item, err := s.repo.FindByCode(ctx, s.db, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return domain.Household{}, err
	}
	if item == nil {
		return domain.Household{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListHouseholdRequest) (domain.ListHouseholdResponse, error) {
	if err := validate.Struct(req); err != nil {
		return domain.ListHouseholdResponse{}, err
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, domain.ListHouseholdFilter{
		Status: req.Status,
		Search: req.Search,
	}, page)
	if err != nil {
		return domain.ListHouseholdResponse{}, err
	}

	items, pageInfo := pagination.BuildPageInfo(items, page, func(item *domain.Household) snowflake.ID {
		return item.ID
	})
	households := make([]domain.Household, 0, len(items))
	for _, item := range items {
		households = append(households, *item)
	}
	return domain.ListHouseholdResponse{PageInfo: pageInfo, Households: households}, nil
}

func normalizeRegister(req domain.RegisterHouseholdRequest) domain.RegisterHouseholdRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.HeadOfHousehold = strings.TrimSpace(req.HeadOfHousehold)
	req.NationalID = strings.TrimSpace(req.NationalID)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	req.Address = strings.TrimSpace(req.Address)
	req.Sector = strings.TrimSpace(req.Sector)
	req.Cell = strings.TrimSpace(req.Cell)
	req.Village = strings.TrimSpace(req.Village)
	req.MeterNumber = strings.TrimSpace(req.MeterNumber)
	if req.Members == 0 {
		req.Members = 1
	}
	return req
}
