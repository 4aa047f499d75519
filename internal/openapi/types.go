package openapi

import "github.com/getkin/kin-openapi/openapi3"

// Field types used by the keypanel schemas.
const (
	tString  = "string"
	tInteger = "integer"
	tBoolean = "boolean"
	tObject  = "object"
	tArray   = "array"
)

// field is one property of an object schema.
type field struct {
	name     string
	typ      string
	format   string
	nullable bool
	desc     string
	ref      string // component name; overrides typ
	items    string // component name for array items
	required bool
}

func str(name, desc string) field      { return field{name: name, typ: tString, desc: desc} }
func boolean(name, desc string) field  { return field{name: name, typ: tBoolean, desc: desc} }
func epoch(name, desc string) field    { return field{name: name, typ: tInteger, format: "int64", desc: desc} }
func integer(name, desc string) field  { return field{name: name, typ: tInteger, format: "int32", desc: desc} }
func ref(name, component string) field { return field{name: name, ref: component} }
func list(name, component string) field {
	return field{name: name, typ: tArray, items: component}
}

func (f field) orNull() field { f.nullable = true; return f }
func (f field) req() field    { f.required = true; return f }

// object builds an object schema from fields.
func object(desc string, fields ...field) *openapi3.SchemaRef {
	s := &openapi3.Schema{
		Type:        &openapi3.Types{tObject},
		Description: desc,
		Properties:  openapi3.Schemas{},
	}
	for _, f := range fields {
		s.Properties[f.name] = fieldSchema(f)
		if f.required {
			s.Required = append(s.Required, f.name)
		}
	}
	return &openapi3.SchemaRef{Value: s}
}

func fieldSchema(f field) *openapi3.SchemaRef {
	if f.ref != "" {
		return componentRef(f.ref)
	}
	types := openapi3.Types{f.typ}
	if f.nullable {
		// OpenAPI 3.1 expresses nullability as a type union.
		types = append(types, "null")
	}
	s := &openapi3.Schema{Type: &types, Format: f.format, Description: f.desc}
	if f.items != "" {
		s.Items = componentRef(f.items)
	}
	return &openapi3.SchemaRef{Value: s}
}

func componentRef(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}
