package db

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SumDecimal adds up column over the rows stmt selects. The values are summed
// in Go because SQLite returns SUM over NUMERIC columns as a float.
func SumDecimal(stmt *gorm.DB, column string) (decimal.Decimal, error) {
	var values []decimal.Decimal
	if err := stmt.Pluck(column, &values).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total, nil
}
