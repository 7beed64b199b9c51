package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/luantaraschi/petichat-definitive/apperr"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Pagination bounds shared by every list operation
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page is a 1-based page request
type Page struct {
	Page  int
	Limit int
}

// normalize clamps the page to valid bounds and returns limit and offset
func (p Page) normalize() (limit, offset int, page Page) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p.Limit, (p.Page - 1) * p.Limit, p
}

// Pagination describes the page returned by a list operation
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func paginate(p Page, total int) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}

// validateStruct runs struct tags and converts failures to a validation error
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("", apperr.FieldError{Message: err.Error()})
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{
			Field:   lowerFirst(fe.Field()),
			Message: fieldMessage(fe),
		})
	}
	return apperr.Validation("", fields...)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Campo obrigatório"
	case "min":
		return fmt.Sprintf("Deve ter no mínimo %s caracteres", fe.Param())
	case "max":
		return fmt.Sprintf("Deve ter no máximo %s caracteres", fe.Param())
	case "email":
		return "E-mail inválido"
	case "oneof":
		return fmt.Sprintf("Deve ser um de: %s", fe.Param())
	}
	return "Valor inválido"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func invalidField(field, message string) error {
	return apperr.Validation("", apperr.FieldError{Field: field, Message: message})
}
