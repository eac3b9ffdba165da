package sequence

import (
	"context"

	"github.com/smallbiznis/aquabill/internal/sequence/domain"
	"gorm.io/gorm"
)

// ColumnSeed seeds a namespace from the highest identifier already stored in
// table.column, so counters pick up where previously numbered rows left off.
func ColumnSeed(table, column string) domain.SeedFunc {
	return func(ctx context.Context, db *gorm.DB, ns domain.Namespace) (int64, error) {
		var last string
		err := db.WithContext(ctx).
			Table(table).
			Select(column).
			Where(column+" LIKE ?", ns.String()+"-%").
			Order("LENGTH(" + column + ") DESC").
			Order(column + " DESC").
			Limit(1).
			Scan(&last).Error
		if err != nil {
			return 0, err
		}
		if last == "" {
			return 0, nil
		}
		_, value, err := domain.Parse(last)
		if err != nil {
			return 0, nil
		}
		return value, nil
	}
}
