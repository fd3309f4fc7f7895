// Package schema describes the wire shape of each API resource as an ordered
// list of typed fields and decodes loosely-typed request bodies (JSON objects,
// url-encoded forms, multipart forms) against it.
//
// Read-only fields and unknown keys in the input are ignored. Every field
// problem is collected into a single *domain.ValidationError.
package schema

import (
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// FieldType is the wire type of a field.
type FieldType int

const (
	String FieldType = iota
	Bool
	File
	Datetime
	Reference
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case Bool:
		return "boolean"
	case File:
		return "file"
	case Datetime:
		return "datetime"
	case Reference:
		return "reference"
	default:
		return "unknown"
	}
}

// FormValue marks a value that arrived as text from a form submission, where
// booleans are spelled as strings.
type FormValue string

// Field is one entry of a resource schema.
type Field struct {
	Name      string
	Type      FieldType
	ReadOnly  bool
	WriteOnly bool
	Required  bool
	Nullable  bool
	// Rules is a go-playground/validator tag applied to string values.
	Rules string
}

// Schema is the ordered field list of a resource.
type Schema struct {
	Name   string
	Fields []Field
}

// Values holds decoded, type-checked input keyed by field name. A present key
// with a nil value means the client explicitly cleared a nullable field.
type Values map[string]any

var validate = validator.New()

// Readable returns the names of fields rendered in responses, in schema
// order.
func (s Schema) Readable() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if !f.WriteOnly {
			out = append(out, f.Name)
		}
	}
	return out
}

// Writable returns the names of fields a client may set, in schema order.
func (s Schema) Writable() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if !f.ReadOnly {
			out = append(out, f.Name)
		}
	}
	return out
}

// FieldInfo describes one field in a resource's Metadata.
type FieldInfo struct {
	Type      string `json:"type"`
	Required  bool   `json:"required"`
	ReadOnly  bool   `json:"read_only"`
	WriteOnly bool   `json:"write_only,omitempty"`
	Nullable  bool   `json:"nullable,omitempty"`
}

// Metadata is the self-description of a resource served on OPTIONS requests.
type Metadata struct {
	Name    string               `json:"name"`
	Renders []string             `json:"renders"`
	Accepts []string             `json:"accepts"`
	Fields  map[string]FieldInfo `json:"fields"`
}

func (s Schema) Metadata() Metadata {
	fields := make(map[string]FieldInfo, len(s.Fields))
	for _, f := range s.Fields {
		fields[f.Name] = FieldInfo{
			Type:      f.Type.String(),
			Required:  f.Required,
			ReadOnly:  f.ReadOnly,
			WriteOnly: f.WriteOnly,
			Nullable:  f.Nullable,
		}
	}
	return Metadata{Name: s.Name, Renders: s.Readable(), Accepts: s.Writable(), Fields: fields}
}

// Decode type-checks input against the schema. With partial set, missing
// required fields are allowed.
func (s Schema) Decode(input map[string]any, partial bool) (Values, error) {
	out := make(Values, len(input))
	verr := domain.NewValidationError()

	for _, f := range s.Fields {
		if f.ReadOnly {
			continue
		}
		raw, present := input[f.Name]
		if !present {
			if f.Required && !partial {
				verr.Add(f.Name, "this field is required")
			}
			continue
		}

		v, msg := f.coerce(raw)
		if msg != "" {
			verr.Add(f.Name, msg)
			continue
		}
		if v == nil {
			out[f.Name] = nil
			continue
		}
		if str, ok := v.(string); ok && f.Rules != "" {
			if err := validate.Var(str, f.Rules); err != nil {
				verr.Add(f.Name, ruleMessage(err))
				continue
			}
		}
		out[f.Name] = v
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f Field) coerce(raw any) (any, string) {
	if raw == nil {
		if f.Nullable {
			return nil, ""
		}
		return nil, "this field may not be null"
	}

	switch f.Type {
	case String:
		switch v := raw.(type) {
		case string:
			return v, ""
		case FormValue:
			return string(v), ""
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), ""
		default:
			return nil, "not a valid string"
		}

	case Bool:
		switch v := raw.(type) {
		case bool:
			return v, ""
		case FormValue:
			if b, ok := parseFormBool(string(v)); ok {
				return b, ""
			}
		}
		return nil, "must be a valid boolean"

	case File:
		switch v := raw.(type) {
		case *multipart.FileHeader:
			return v, ""
		case string:
			if v == "" && f.Nullable {
				return nil, ""
			}
		case FormValue:
			if v == "" && f.Nullable {
				return nil, ""
			}
		}
		return nil, "the submitted data was not a file"

	default:
		return nil, fmt.Sprintf("%s fields are read-only", f.Type)
	}
}

func parseFormBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "yes", "y":
		return true, true
	case "off", "no", "n":
		return false, true
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false
	}
	return b, true
}

func ruleMessage(err error) string {
	ve, ok := err.(validator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return err.Error()
	}
	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return "this field may not be blank"
	case "min":
		if fe.Param() == "1" {
			return "this field may not be blank"
		}
		return fmt.Sprintf("ensure this field has at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("ensure this field has no more than %s characters", fe.Param())
	case "email":
		return "enter a valid email address"
	default:
		return fmt.Sprintf("failed validation (%s)", fe.Tag())
	}
}

// Text returns the named string value, or nil when it was not supplied.
func (v Values) Text(name string) *string {
	s, ok := v[name].(string)
	if !ok {
		return nil
	}
	return &s
}

// Bool returns the named boolean value, or nil when it was not supplied.
func (v Values) Bool(name string) *bool {
	b, ok := v[name].(bool)
	if !ok {
		return nil
	}
	return &b
}

// File returns the uploaded file for name, if any.
func (v Values) File(name string) *multipart.FileHeader {
	fh, _ := v[name].(*multipart.FileHeader)
	return fh
}

// Cleared reports whether name was explicitly set to null.
func (v Values) Cleared(name string) bool {
	raw, ok := v[name]
	return ok && raw == nil
}
