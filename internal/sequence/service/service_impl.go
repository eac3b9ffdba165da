package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/aquabill/internal/clock"
	"github.com/smallbiznis/aquabill/internal/config"
	obsmetrics "github.com/smallbiznis/aquabill/internal/observability/metrics"
	"github.com/smallbiznis/aquabill/internal/sequence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       domain.Repository
	Billing    *config.BillingConfigHolder `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	billing    *config.BillingConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Issuer {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("sequence.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		billing:    p.Billing,
		obsMetrics: p.ObsMetrics,
	}
}

// Issue increments the namespace counter inside tx. The row lock taken by the
// UPDATE is held until tx ends, so concurrent issuers in the same namespace
// serialize while other namespaces never contend.
func (s *Service) Issue(ctx context.Context, tx *gorm.DB, req domain.IssueRequest) (string, error) {
	if tx == nil {
		return "", domain.ErrMissingTransaction
	}
	ns := req.Namespace
	if err := ns.Validate(); err != nil {
		return "", err
	}

	now := s.clock.Now()
	value, found, err := s.repo.Increment(ctx, tx, ns, now)
	if err != nil {
		return "", err
	}
	if found {
		return domain.Format(ns, value), nil
	}

	var seed int64
	if req.Seed != nil {
		seed, err = req.Seed(ctx, tx, ns)
		if err != nil {
			return "", err
		}
	}

	inserted, err := s.repo.Insert(ctx, tx, &domain.Counter{
		Prefix:    ns.Prefix,
		Bucket:    ns.Bucket,
		LastValue: seed + 1,
		UpdatedAt: now,
	})
	if err != nil {
		return "", err
	}
	if inserted {
		return domain.Format(ns, seed+1), nil
	}

	// another transaction created the counter first
	value, found, err = s.repo.Increment(ctx, tx, ns, now)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("sequence counter %s missing after insert", ns)
	}
	return domain.Format(ns, value), nil
}

func (s *Service) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	attempts := s.billing.Get().SequenceRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}

		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) {
			return err
		}
		lastErr = err

		for _, req := range conflict.Requests {
			s.obsMetrics.RecordSequenceRetry(ctx, req.Namespace.Prefix)
		}
		s.log.Warn("identifier conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)

		if err := s.resync(ctx, conflict); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: %v", domain.ErrRetriesExhausted, lastErr)
}

// resync advances conflicting counters past identifiers that already exist.
func (s *Service) resync(ctx context.Context, conflict *domain.ConflictError) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		for _, req := range conflict.Requests {
			if req.Seed == nil {
				continue
			}
			seed, err := req.Seed(ctx, tx, req.Namespace)
			if err != nil {
				return err
			}
			if err := s.repo.AdvanceTo(ctx, tx, req.Namespace, seed, now); err != nil {
				return err
			}
		}
		return nil
	})
}
