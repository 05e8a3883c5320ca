package validator

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator wraps struct validation with the grading domain rules registered.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with custom rules registered.
func New() *Validator {
	validate := validator.New()

	v := &Validator{validate: validate}
	v.registerRules()

	return v
}

// Validate validates any struct and returns ValidationErrors on failure.
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// registerRules registers custom domain validators
func (v *Validator) registerRules() {
	// Passing score validation (0-100)
	v.validate.RegisterValidation("passing_score", func(fl validator.FieldLevel) bool {
		score := fl.Field().Float()
		return score >= 0 && score <= 100
	})

	// Review rating validation (1-5 stars)
	v.validate.RegisterValidation("review_rating", func(fl validator.FieldLevel) bool {
		rating := fl.Field().Int()
		return rating >= 1 && rating <= 5
	})

	// Max attempts validation (1-10)
	v.validate.RegisterValidation("max_attempts", func(fl validator.FieldLevel) bool {
		attempts := fl.Field().Int()
		return attempts >= 1 && attempts <= 10
	})

	// Title validation (1-200 characters)
	v.validate.RegisterValidation("quiz_title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return len(title) >= 1 && len(title) <= 200
	})

	// Date validation (must be in future)
	v.validate.RegisterValidation("future_date", func(fl validator.FieldLevel) bool {
		field := fl.Field()

		if field.Kind() == reflect.Ptr && field.IsNil() {
			return true // Optional field
		}

		var date time.Time
		if field.Kind() == reflect.Ptr {
			date = field.Elem().Interface().(time.Time)
		} else {
			date = field.Interface().(time.Time)
		}

		return date.After(time.Now())
	})
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates all failures from a single Validate call.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(e))
	for i, err := range e {
		messages[i] = err.Error()
	}
	return strings.Join(messages, "; ")
}

// ToValidationErrors converts go-playground validator errors to the domain form.
func ToValidationErrors(err error) error {
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationErrors{{
			Field:   "unknown",
			Message: err.Error(),
		}}
	}

	errors := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		errors = append(errors, ValidationError{
			Field:   fieldName(fe),
			Message: messageForTag(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	if len(errors) == 0 {
		return nil
	}
	return errors
}

func fieldName(fe validator.FieldError) string {
	// StructNamespace looks like "StartAttemptRequest.QuizID"; drop the type.
	namespace := fe.StructNamespace()
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return fe.Field()
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "passing_score":
		return "must be between 0 and 100"
	case "review_rating":
		return "must be between 1 and 5"
	case "max_attempts":
		return "must be between 1 and 10"
	case "quiz_title":
		return "must be between 1 and 200 characters"
	case "future_date":
		return "must be in the future"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
