package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/actor"
	"github.com/smallbiznis/aquabill/internal/billingperiod"
	"github.com/smallbiznis/aquabill/internal/clock"
	householddomain "github.com/smallbiznis/aquabill/internal/household/domain"
	usagedomain "github.com/smallbiznis/aquabill/internal/usage/domain"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
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
	Repo       usagedomain.Repository
	Households householddomain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       usagedomain.Repository
	households householddomain.Repository
}

func New(p Params) usagedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("usage.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		households: p.Households,
	}
}

// Record stores a meter reading. Consumption is derived from the readings;
// a caller-supplied value is ignored.
func (s *Service) Record(ctx context.Context, req usagedomain.RecordUsageRequest) (usagedomain.Record, error) {
	if err := validate.Struct(req); err != nil {
		return usagedomain.Record{}, err
	}
	period, err := billingperiod.Parse(req.ReadingMonth)
	if err != nil {
		return usagedomain.Record{}, err
	}
	if req.PreviousReading.IsNegative() || req.CurrentReading.IsNegative() {
		return usagedomain.Record{}, usagedomain.ErrNegativeReading
	}
	if req.CurrentReading.LessThan(req.PreviousReading) {
		return usagedomain.Record{}, usagedomain.ErrReadingDecreased
	}

	now := s.clock.Now()
	readingDate := req.ReadingDate
	if readingDate.IsZero() {
		readingDate = now
	}
	record := usagedomain.Record{
		ID:              s.genID.Generate(),
		HouseholdID:     req.HouseholdID,
		PreviousReading: req.PreviousReading,
		CurrentReading:  req.CurrentReading,
		LitersUsed:      usagedomain.Consumption(req.PreviousReading, req.CurrentReading),
		ReadingDate:     readingDate.UTC(),
		ReadingMonth:    period.String(),
		Status:          usagedomain.StatusPending,
		RecordedBy:      actor.FromContextOrSystem(ctx).UserIDPtr(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		household, err := s.households.FindByID(ctx, tx, req.HouseholdID)
		if err != nil {
			return err
		}
		if household == nil {
			return usagedomain.ErrHouseholdNotFound
		}

		existing, err := s.repo.FindForPeriod(ctx, tx, record.HouseholdID, record.ReadingMonth)
		if err != nil {
			return err
		}
		if existing != nil {
			return usagedomain.ErrAlreadyRecorded
		}

		inserted, err := s.repo.Insert(ctx, tx, &record)
		if err != nil {
			return err
		}
		if !inserted {
			return usagedomain.ErrAlreadyRecorded
		}
		return nil
	})
	if err != nil {
		return usagedomain.Record{}, err
	}

	s.log.Info("usage recorded",
		zap.String("usage_id", record.ID.String()),
		zap.String("household_id", record.HouseholdID.String()),
		zap.String("reading_month", record.ReadingMonth),
		zap.String("liters_used", record.LitersUsed.String()),
	)
	return record, nil
}

// Verify moves a pending reading to verified. Verifying twice is a no-op.
func (s *Service) Verify(ctx context.Context, id snowflake.ID) (usagedomain.Record, error) {
	var record usagedomain.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		moved, err := s.repo.Transition(ctx, tx, id, []usagedomain.Status{usagedomain.StatusPending}, usagedomain.StatusVerified, now)
		if err != nil {
			return err
		}

		item, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return usagedomain.ErrNotFound
		}
		if !moved && item.Status == usagedomain.StatusBilled {
			return usagedomain.ErrAlreadyBilled
		}
		record = *item
		return nil
	})
	if err != nil {
		return usagedomain.Record{}, err
	}
	return record, nil
}

func (s *Service) GetForPeriod(ctx context.Context, householdID snowflake.ID, readingMonth string) (usagedomain.Record, error) {
	period, err := billingperiod.Parse(readingMonth)
	if err != nil {
		return usagedomain.Record{}, err
	}
	item, err := s.repo.FindForPeriod(ctx, s.db, householdID, period.String())
	if err != nil {
		return usagedomain.Record{}, err
	}
	if item == nil {
		return usagedomain.Record{}, usagedomain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req usagedomain.ListUsageRequest) (usagedomain.ListUsageResponse, error) {
	if err := validate.Struct(req); err != nil {
		return usagedomain.ListUsageResponse{}, err
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, usagedomain.ListUsageFilter{
		HouseholdID:  req.HouseholdID,
		ReadingMonth: req.ReadingMonth,
		Status:       req.Status,
	}, page)
	if err != nil {
		return usagedomain.ListUsageResponse{}, err
	}

	items, pageInfo := pagination.BuildPageInfo(items, page, func(item *usagedomain.Record) snowflake.ID {
		return item.ID
	})
	records := make([]usagedomain.Record, 0, len(items))
	for _, item := range items {
		records = append(records, *item)
	}
	return usagedomain.ListUsageResponse{PageInfo: pageInfo, UsageRecords: records}, nil
}
