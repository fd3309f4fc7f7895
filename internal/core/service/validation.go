package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/crmhub/crm-api/internal/core/domain"
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// validateInput runs struct-tag validation and converts failures into a
// field-level *domain.ValidationError.
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := domain.NewValidationError()
	for _, fe := range ve {
		out.Add(fe.Field(), fieldMessage(fe))
	}
	return out
}

// validateEmail checks an optional email value.
func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if err := validate.Var(email, "email"); err != nil {
		return domain.FieldError("email", "enter a valid email address")
	}
	return nil
}

// normalizeEmail is applied to every email before it is stored or looked up,
// so addresses are unique regardless of case.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeEmailPtr(email *string) *string {
	if email == nil {
		return nil
	}
	v := normalizeEmail(*email)
	return &v
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "min":
		if fe.Param() == "1" {
			return "this field may not be blank"
		}
		return fmt.Sprintf("ensure this field has at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("ensure this field has no more than %s characters", fe.Param())
	case "username":
		return "enter a valid username: letters, digits and @/./+/-/_ only"
	default:
		return fmt.Sprintf("failed validation (%s)", fe.Tag())
	}
}
