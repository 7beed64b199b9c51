package repository

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"github.com/luantaraschi/petichat-definitive/apperr"
)

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "[]", formatVector(nil))
	assert.Equal(t, "[0.500000,-1.000000,0.000000]", formatVector([]float32{0.5, -1, 0}))
}

func TestQueryBuilderNumbersPlaceholders(t *testing.T) {
	b := &queryBuilder{}
	assert.Equal(t, "", b.clause())

	b.add("tenant_id = ?", "t")
	b.add("(summary ILIKE ? OR full_text ILIKE ?)", "%dano%")
	assert.Equal(t, " WHERE tenant_id = $1 AND (summary ILIKE $2 OR full_text ILIKE $2)", b.clause())

	assert.Equal(t, " LIMIT $3 OFFSET $4", b.page(20, 40))
	assert.Equal(t, []any{"t", "%dano%", 20, 40}, b.args)
}

func TestQueryBuilderSkipsZeroOffset(t *testing.T) {
	b := &queryBuilder{}
	assert.Equal(t, " LIMIT $1", b.page(10, 0))
	assert.Equal(t, "", (&queryBuilder{}).page(0, 5))
}

func TestNotFoundMapsNoRows(t *testing.T) {
	err := notFound(pgx.ErrNoRows, "case")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	other := errors.New("connection reset")
	assert.Same(t, other, notFound(other, "case"))
}

func TestStepConversions(t *testing.T) {
	assert.Equal(t, []int32{1, 2}, toInt32s([]int{1, 2}))
	assert.Equal(t, []int{3}, toInts([]int32{3}))
}
