package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/service"
)

// respondOK writes the success envelope
func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes the error envelope for err. Unknown errors become
// INTERNAL_ERROR and their cause is attached to the request for logging.
func respondError(c *gin.Context, err error) {
	e := apperr.From(err)
	if e.Status() >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	body := gin.H{
		"code":    string(e.Kind),
		"message": e.Message,
	}
	if len(e.Fields) > 0 {
		body["details"] = e.Fields
	}
	c.AbortWithStatusJSON(e.Status(), gin.H{
		"success": false,
		"error":   body,
	})
}

// bindJSON decodes the request body, reporting binding failures as
// validation errors with field details
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, bindingError(err))
		return false
	}
	return true
}

func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperr.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperr.FieldError{
				Field:   lowerFirst(fe.Field()),
				Message: bindingMessage(fe),
			})
		}
		return apperr.Validation("", fields...)
	}
	return apperr.Validation("Corpo da requisição inválido")
}

func bindingMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Campo obrigatório"
	case "email":
		return "E-mail inválido"
	case "min":
		return "Deve ter no mínimo " + fe.Param() + " caracteres"
	case "max":
		return "Deve ter no máximo " + fe.Param() + " caracteres"
	case "oneof":
		return "Deve ser um de: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "Valor inválido"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// uuidParam parses a path parameter, writing a validation error on failure
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperr.Validation("Identificador inválido", apperr.FieldError{Field: name, Message: "Deve ser um UUID"}))
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDs(field string, raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, apperr.Validation("Identificador inválido", apperr.FieldError{Field: field, Message: "Deve conter UUIDs"})
		}
		out = append(out, id)
	}
	return out, nil
}

func optionalUUID(field string, raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, apperr.Validation("Identificador inválido", apperr.FieldError{Field: field, Message: "Deve ser um UUID"})
	}
	return &id, nil
}

// pageQuery reads ?page= and ?limit=; the services clamp the values
func pageQuery(c *gin.Context) service.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return service.Page{Page: page, Limit: limit}
}
