package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FieldError is one argument that does not match the schema. Keyword is the
// failing schema keyword ("required", "type", "enum", ...).
type FieldError struct {
	Field   string
	Keyword string
	Message string
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator checks arguments against one compiled Schema.
type Validator struct {
	schema *jsonschema.Schema
}

// Compile turns the schema into a Validator. name only labels the resource.
func (s Schema) Compile(name string) (*Validator, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}

	loc := "https://atlas.local/tools/" + url.PathEscape(name) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, doc); err != nil {
		return nil, fmt.Errorf("adding schema: %w", err)
	}
	compiled, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate checks raw JSON arguments. Empty input is treated as an empty
// object. Every mismatch is reported as a FieldError, joined into one error.
func (v *Validator) Validate(args json.RawMessage) error {
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return FieldError{Keyword: "json", Message: fmt.Sprintf("arguments are not valid JSON: %v", err)}
	}

	err = v.schema.Validate(inst)
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}

	var errs []error
	for _, fe := range fieldErrors(ve) {
		errs = append(errs, fe)
	}
	return errors.Join(errs...)
}

// Validate compiles the schema and checks args once. Callers validating
// repeatedly should Compile.
func (s Schema) Validate(args json.RawMessage) error {
	v, err := s.Compile("inline")
	if err != nil {
		return err
	}
	return v.Validate(args)
}

func fieldErrors(ve *jsonschema.ValidationError) []FieldError {
	if len(ve.Causes) > 0 {
		var out []FieldError
		for _, c := range ve.Causes {
			out = append(out, fieldErrors(c)...)
		}
		return out
	}

	path := fieldPath(ve.InstanceLocation)
	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		out := make([]FieldError, len(k.Missing))
		for i, name := range k.Missing {
			out[i] = FieldError{Field: join(path, name), Keyword: "required", Message: "required field is missing"}
		}
		return out
	case *kind.AdditionalProperties:
		out := make([]FieldError, len(k.Properties))
		for i, name := range k.Properties {
			out[i] = FieldError{Field: join(path, name), Keyword: "additionalProperties", Message: "additional property not allowed"}
		}
		return out
	}

	keyword := ""
	if kp := ve.ErrorKind.KeywordPath(); len(kp) > 0 {
		keyword = kp[len(kp)-1]
	}
	return []FieldError{{Field: path, Keyword: keyword, Message: ve.ErrorKind.LocalizedString(printer)}}
}

// fieldPath renders an instance location as entries[0].id.
func fieldPath(loc []string) string {
	var b strings.Builder
	for _, seg := range loc {
		if isIndex(seg) {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
