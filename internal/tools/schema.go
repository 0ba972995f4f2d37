package tools

// Schema is the JSON-Schema subset describing a tool's arguments. The root is
// always an object.
type Schema struct {
	Type                 string           `json:"type"`
	Properties           map[string]Field `json:"properties"`
	Required             []string         `json:"required"`
	AdditionalProperties *bool            `json:"additionalProperties,omitempty"`
}

// Field describes one property.
type Field struct {
	Type                 string           `json:"type,omitempty"`
	Description          string           `json:"description,omitempty"`
	Enum                 []string         `json:"enum,omitempty"`
	Minimum              *float64         `json:"minimum,omitempty"`
	Maximum              *float64         `json:"maximum,omitempty"`
	MinItems             *int             `json:"minItems,omitempty"`
	Items                *Field           `json:"items,omitempty"`
	Properties           map[string]Field `json:"properties,omitempty"`
	Required             []string         `json:"required,omitempty"`
	AdditionalProperties *bool            `json:"additionalProperties,omitempty"`
}

// Object builds a closed root schema: properties not listed are rejected.
func Object(properties map[string]Field, required ...string) Schema {
	if properties == nil {
		properties = map[string]Field{}
	}
	if required == nil {
		required = []string{}
	}
	closed := false
	return Schema{
		Type:                 "object",
		Properties:           properties,
		Required:             required,
		AdditionalProperties: &closed,
	}
}

func String(description string) Field {
	return Field{Type: "string", Description: description}
}

func Integer(description string) Field {
	return Field{Type: "integer", Description: description}
}

func Array(items Field, description string) Field {
	return Field{Type: "array", Description: description, Items: &items}
}

// ObjectField builds a nested object. Unlike Object it stays open unless
// Closed is applied.
func ObjectField(properties map[string]Field, required ...string) Field {
	return Field{Type: "object", Properties: properties, Required: required}
}

func (f Field) WithEnum(values ...string) Field {
	f.Enum = values
	return f
}

func (f Field) WithMin(min float64) Field {
	f.Minimum = &min
	return f
}

func (f Field) WithMax(max float64) Field {
	f.Maximum = &max
	return f
}

func (f Field) WithMinItems(n int) Field {
	f.MinItems = &n
	return f
}

func (f Field) Closed() Field {
	closed := false
	f.AdditionalProperties = &closed
	return f
}
