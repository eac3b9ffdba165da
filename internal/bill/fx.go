package bill

import (
	"github.com/smallbiznis/aquabill/internal/bill/domain"
	"github.com/smallbiznis/aquabill/internal/bill/repository"
	"github.com/smallbiznis/aquabill/internal/bill/service"
	"github.com/smallbiznis/aquabill/internal/lock"
	"go.uber.org/fx"
)

var Module = fx.Module("bill.service",
	fx.Provide(repository.Provide),
	fx.Provide(batchLocker),
	fx.Provide(service.New),
)

// batchLocker leaves the interface nil when Redis is not configured.
func batchLocker(l *lock.Locker) domain.Locker {
	if l == nil {
		return nil
	}
	return l
}
