package handler

import (
	"strings"

	"golang.org/x/text/language"

	"statusable/internal/status/service"
	dErrors "statusable/pkg/domain-errors"
)

const maxNameLength = 255

// UpdateRequest is the PATCH /statuses/{id} body. Omitted fields keep their
// stored translation.
type UpdateRequest struct {
	Locale      string  `json:"locale"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Validate normalizes the locale tag and checks the translated fields.
func (r *UpdateRequest) Validate() error {
	r.Locale = strings.TrimSpace(r.Locale)
	if r.Locale != "" {
		tag, err := language.Parse(r.Locale)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "locale is not a valid language tag")
		}
		r.Locale = tag.String()
	}
	if r.Name == nil && r.Description == nil {
		return dErrors.New(dErrors.CodeValidation, "name or description is required")
	}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return dErrors.New(dErrors.CodeValidation, "name must not be empty")
		}
		if len(name) > maxNameLength {
			return dErrors.New(dErrors.CodeValidation, "name is too long")
		}
		r.Name = &name
	}
	return nil
}

func (r *UpdateRequest) input() service.UpdateInput {
	return service.UpdateInput{Locale: r.Locale, Name: r.Name, Description: r.Description}
}
