package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/aquabill/internal/clock"
	"github.com/smallbiznis/aquabill/internal/config"
	"github.com/smallbiznis/aquabill/internal/sequence"
	"github.com/smallbiznis/aquabill/internal/sequence/domain"
	"github.com/smallbiznis/aquabill/internal/sequence/repository"
	"github.com/smallbiznis/aquabill/internal/sequence/service"
	pkgdb "github.com/smallbiznis/aquabill/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

func setupIssuer(t *testing.T, attempts int) (*service.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&domain.Counter{}))
	require.NoError(t, db.Exec(`CREATE TABLE legacy_codes (code TEXT NOT NULL UNIQUE)`).Error)

	billing := config.DefaultBillingConfig()
	billing.SequenceRetryAttempts = attempts

	svc := service.NewService(service.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clock.NewFakeClock(testNow),
		Repo:    repository.Provide(),
		Billing: config.NewStaticBillingConfigHolder(billing),
	}).(*service.Service)
	return svc, db
}

func issueOnce(t *testing.T, svc *service.Service, req domain.IssueRequest) string {
	t.Helper()
	var id string
	err := svc.Transaction(context.Background(), func(tx *gorm.DB) error {
		var err error
		id, err = svc.Issue(context.Background(), tx, req)
		return err
	})
	require.NoError(t, err)
	return id
}

func TestIssueStartsAtOneAndIncrements(t *testing.T) {
	svc, _ := setupIssuer(t, 3)
	req := domain.IssueRequest{Namespace: domain.BillNamespace(testNow)}

	assert.Equal(t, "BILL-202403-0001", issueOnce(t, svc, req))
	assert.Equal(t, "BILL-202403-0002", issueOnce(t, svc, req))
	assert.Equal(t, "BILL-202403-0003", issueOnce(t, svc, req))
}

func TestIssueKeepsNamespacesIndependent(t *testing.T) {
	svc, _ := setupIssuer(t, 3)

	assert.Equal(t, "RCP-202403-0001", issueOnce(t, svc, domain.IssueRequest{Namespace: domain.ReceiptNamespace(testNow)}))
	assert.Equal(t, "RCP-202404-0001", issueOnce(t, svc, domain.IssueRequest{Namespace: domain.ReceiptNamespace(testNow.AddDate(0, 1, 0))}))
	assert.Equal(t, "TXN-20240315-0001", issueOnce(t, svc, domain.IssueRequest{Namespace: domain.TransactionNamespace(testNow)}))
	assert.Equal(t, "RCP-202403-0002", issueOnce(t, svc, domain.IssueRequest{Namespace: domain.ReceiptNamespace(testNow)}))
}

func TestIssueSeedsFromExistingRows(t *testing.T) {
	svc, db := setupIssuer(t, 3)
	for _, code := range []string{"HH-2024-0009", "HH-2024-0010", "HH-2023-0050"} {
		require.NoError(t, db.Exec(`INSERT INTO legacy_codes (code) VALUES (?)`, code).Error)
	}

	req := domain.IssueRequest{
		Namespace: domain.HouseholdNamespace(testNow),
		Seed:      sequence.ColumnSeed("legacy_codes", "code"),
	}
	assert.Equal(t, "HH-2024-0011", issueOnce(t, svc, req))
	assert.Equal(t, "HH-2024-0012", issueOnce(t, svc, req))
}

func TestRolledBackIssueLeavesNoGap(t *testing.T) {
	svc, db := setupIssuer(t, 3)
	ctx := context.Background()
	req := domain.IssueRequest{Namespace: domain.BillNamespace(testNow)}
	boom := errors.New("boom")
	rollback := func() {
		err := svc.Transaction(ctx, func(tx *gorm.DB) error {
			if _, err := svc.Issue(ctx, tx, req); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
	}

	rollback()
	counter, err := service.RepoOf(svc).Get(ctx, db, req.Namespace)
	require.NoError(t, err)
	assert.Nil(t, counter)

	assert.Equal(t, "BILL-202403-0001", issueOnce(t, svc, req))

	rollback()
	counter, err = service.RepoOf(svc).Get(ctx, db, req.Namespace)
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, int64(1), counter.LastValue)

	assert.Equal(t, "BILL-202403-0002", issueOnce(t, svc, req))
}

func TestConcurrentIssuanceYieldsDistinctContiguousSuffixes(t *testing.T) {
	svc, _ := setupIssuer(t, 3)
	req := domain.IssueRequest{Namespace: domain.ReceiptNamespace(testNow)}

	const n = 25
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]struct{}{}
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var id string
			err := svc.Transaction(context.Background(), func(tx *gorm.DB) error {
				var err error
				id, err = svc.Issue(context.Background(), tx, req)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			seen[id] = struct{}{}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, seen, n)
	for i := 1; i <= n; i++ {
		_, ok := seen[domain.Format(req.Namespace, int64(i))]
		assert.True(t, ok, "missing suffix %d", i)
	}
}

func TestTransactionRetriesPastExistingIdentifiers(t *testing.T) {
	svc, db := setupIssuer(t, 3)
	ns := domain.BillNamespace(testNow)
	require.NoError(t, db.Create(&domain.Counter{Prefix: ns.Prefix, Bucket: ns.Bucket, LastValue: 0, UpdatedAt: testNow}).Error)
	for _, code := range []string{"BILL-202403-0001", "BILL-202403-0002"} {
		require.NoError(t, db.Exec(`INSERT INTO legacy_codes (code) VALUES (?)`, code).Error)
	}

	req := domain.IssueRequest{Namespace: ns, Seed: sequence.ColumnSeed("legacy_codes", "code")}
	attempts := 0
	var issued string
	err := svc.Transaction(context.Background(), func(tx *gorm.DB) error {
		attempts++
		id, err := svc.Issue(context.Background(), tx, req)
		if err != nil {
			return err
		}
		if err := tx.Exec(`INSERT INTO legacy_codes (code) VALUES (?)`, id).Error; err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return domain.Conflict(req)
			}
			return err
		}
		issued = id
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "BILL-202403-0003", issued)
}

func TestTransactionGivesUpAfterConfiguredAttempts(t *testing.T) {
	svc, _ := setupIssuer(t, 2)
	req := domain.IssueRequest{Namespace: domain.BillNamespace(testNow)}

	attempts := 0
	err := svc.Transaction(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return domain.Conflict(req)
	})

	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, 2, attempts)
}

func TestIssueRejectsInvalidNamespace(t *testing.T) {
	svc, db := setupIssuer(t, 1)
	_, err := svc.Issue(context.Background(), db, domain.IssueRequest{Namespace: domain.Namespace{Prefix: "bill", Bucket: "2024"}})
	assert.ErrorIs(t, err, domain.ErrInvalidNamespace)

	_, err = svc.Issue(context.Background(), nil, domain.IssueRequest{Namespace: domain.BillNamespace(testNow)})
	assert.ErrorIs(t, err, domain.ErrMissingTransaction)
}
