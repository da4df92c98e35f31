package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status RunStatus
		want   string
	}{
		{RunStatusPending, "pending"},
		{RunStatusSuccess, "success"},
		{RunStatusPartial, "partial"},
		{RunStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestSourceKindValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "statement", string(SourceStatement))
	assert.Equal(t, "bill", string(SourceBill))
}

func TestDirectionValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "income", string(DirectionIncome))
	assert.Equal(t, "expense", string(DirectionExpense))
}
