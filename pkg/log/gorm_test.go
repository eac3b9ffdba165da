package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "UPDATE", operationFromSQL("UPDATE sequence_counters SET last_value = last_value + 1"))
	assert.Equal(t, "SELECT", operationFromSQL("WITH t AS (SELECT 1) SELECT * FROM t"))
	assert.Equal(t, "INSERT", operationFromSQL("  (INSERT INTO bills"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
