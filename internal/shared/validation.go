package shared

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError carries one message per rejected form field.
type ValidationError struct {
	Fields map[string]string
	order  []string
}

// Error returns the first field message.
func (e *ValidationError) Error() string {
	if e == nil || len(e.order) == 0 {
		return "Dados inválidos."
	}
	return e.Fields[e.order[0]]
}

// Unwrap ties ValidationError to ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add records a message for field unless one is already present.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = message
	e.order = append(e.order, field)
}

// Messages returns the field messages in the order they were added.
func (e *ValidationError) Messages() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.order))
	for _, field := range e.order {
		out = append(out, e.Fields[field])
	}
	return out
}

// Empty reports whether no field was rejected.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.order) == 0
}

// NewValidator returns a validator that reports fields by their `form` tag
// and labels them by their `label` tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateStruct runs v on s and converts failures into a *ValidationError.
func ValidateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	labels := labelsOf(s)
	out := &ValidationError{}
	for _, fe := range fieldErrs {
		label := labels[fe.StructField()]
		if label == "" {
			label = fe.Field()
		}
		out.Add(fe.Field(), fieldMessage(fe, label))
	}
	return out
}

func labelsOf(s any) map[string]string {
	t := reflect.TypeOf(s)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	labels := make(map[string]string, t.NumField())
	if t.Kind() != reflect.Struct {
		return labels
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		labels[f.Name] = f.Tag.Get("label")
	}
	return labels
}

func fieldMessage(fe validator.FieldError, label string) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("O campo %s é obrigatório.", label)
	case "email":
		return fmt.Sprintf("O campo %s deve conter um e-mail válido.", label)
	case "min", "gte":
		if isString {
			return fmt.Sprintf("O campo %s deve ter no mínimo %s caracteres.", label, fe.Param())
		}
		return fmt.Sprintf("O campo %s deve ser no mínimo %s.", label, fe.Param())
	case "max", "lte":
		if isString {
			return fmt.Sprintf("O campo %s deve ter no máximo %s caracteres.", label, fe.Param())
		}
		return fmt.Sprintf("O campo %s deve ser no máximo %s.", label, fe.Param())
	case "oneof":
		return fmt.Sprintf("O campo %s deve ser um de: %s.", label, strings.Join(strings.Fields(fe.Param()), ", "))
	default:
		return fmt.Sprintf("O campo %s é inválido.", label)
	}
}
