package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("loading case: %w", NotFound("Caso"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestStatusMapping(t *testing.T) {
	cases := map[*Error]int{
		Validation("x"):              http.StatusBadRequest,
		NotFound(""):                 http.StatusNotFound,
		Unauthorized(nil):            http.StatusUnauthorized,
		Provider("openai", nil):      http.StatusBadGateway,
		StaleAction("a1"):            http.StatusGone,
		Conflict(1, 2):               http.StatusConflict,
		Internal(errors.New("boom")): http.StatusInternalServerError,
	}
	for e, status := range cases {
		assert.Equal(t, status, e.Status(), e.Error())
	}
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("db down")
	e := From(cause)

	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, "Ocorreu um erro inesperado", e.Message)
	assert.ErrorIs(t, e, cause)
	assert.Nil(t, From(nil))
}

func TestValidationCarriesFields(t *testing.T) {
	e := Validation("", FieldError{Field: "facts_description", Message: "mínimo de 10 caracteres"})

	assert.Equal(t, "Dados inválidos", e.Message)
	assert.Len(t, e.Fields, 1)
	assert.Equal(t, "facts_description", e.Fields[0].Field)
}
