// Package validation configures the struct validator shared by the HTTP
// handlers and the built-in tools.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxWords is the word limit applied to memory and todo text.
const MaxWords = 100

// New returns a validator that reports JSON field names and understands the
// maxwords=N tag.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	// RegisterValidation only fails on an empty tag or a builtin clash.
	_ = v.RegisterValidation("maxwords", maxWords)
	return v
}

func maxWords(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return WordCount(fl.Field().String()) <= limit
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Message flattens a validator error into one readable line per field.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return strings.Join(msgs, "; ")
}

func formatFieldError(e validator.FieldError) string {
	field := fieldPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", field, e.Param(), e.Value())
	case "maxwords":
		return fmt.Sprintf("%s must be at most %s words", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation '%s'", field, e.Tag())
	}
}

// fieldPath drops the root struct name: "createRequest.memories[0].text"
// becomes "memories[0].text".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
