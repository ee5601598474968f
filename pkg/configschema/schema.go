// Package configschema describes the catalog configuration file as a JSON Schema, so
// editors can complete and check it.
package configschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/nimburion/catalog/pkg/config"
)

// Build returns the JSON Schema of config.Config. Property names are the configuration
// keys and defaults come from defaults (config.DefaultConfig when nil). Unknown keys are
// rejected; no key is required.
func Build(defaults *config.Config) (*jsonschema.Schema, error) {
	opts := &jsonschema.ForOptions{
		IgnoreInvalidTypes: true,
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeFor[time.Duration](): {Type: "string", Description: "Go duration, for example 500ms or 1m30s"},
		},
	}

	configType := reflect.TypeFor[config.Config]()
	schema, err := jsonschema.ForType(configType, opts)
	if err != nil {
		return nil, fmt.Errorf("build config schema: %w", err)
	}
	applyKeyNames(schema, configType)

	if defaults == nil {
		defaults = config.DefaultConfig()
	}
	injectDefaults(schema, reflect.ValueOf(defaults))
	clearRequired(schema)
	annotate(schema, "")

	name := strings.TrimSpace(defaults.Service.Name)
	if name == "" {
		name = "catalog"
	}
	schema.Title = name + " configuration"
	schema.Description = "Configuration file of " + name + ". Every key can also be set through environment variables."
	schema.Schema = "https://json-schema.org/draft/2020-12/schema"
	return schema, nil
}

// applyKeyNames renames properties from Go field names to their mapstructure keys.
func applyKeyNames(schema *jsonschema.Schema, t reflect.Type) {
	if schema == nil {
		return
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		renamed := make(map[string]string)
		for i := range t.NumField() {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			key := keyName(field)
			prop, ok := schema.Properties[field.Name]
			if !ok {
				continue
			}
			delete(schema.Properties, field.Name)
			schema.Properties[key] = prop
			renamed[field.Name] = key
			applyKeyNames(prop, field.Type)
		}
		for i, name := range schema.Required {
			if key, ok := renamed[name]; ok {
				schema.Required[i] = key
			}
		}
		for i, name := range schema.PropertyOrder {
			if key, ok := renamed[name]; ok {
				schema.PropertyOrder[i] = key
			}
		}
	case reflect.Slice, reflect.Array:
		applyKeyNames(schema.Items, t.Elem())
	}
}

func injectDefaults(schema *jsonschema.Schema, value reflect.Value) {
	if schema == nil || !value.IsValid() {
		return
	}
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return
		}
		value = value.Elem()
	}

	if value.Kind() == reflect.Struct {
		t := value.Type()
		for i := range t.NumField() {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			prop, ok := schema.Properties[keyName(field)]
			if !ok {
				continue
			}
			injectDefaults(prop, value.Field(i))
		}
		return
	}

	if schema.Default != nil || value.IsZero() {
		return
	}
	if raw, ok := marshalDefault(value); ok {
		schema.Default = raw
	}
}

func marshalDefault(value reflect.Value) (json.RawMessage, bool) {
	v := value.Interface()
	if d, ok := v.(time.Duration); ok {
		v = d.String()
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return payload, true
}

// clearRequired drops every required list: any key may come from the environment, a
// secrets file or the defaults instead of the configuration file.
func clearRequired(schema *jsonschema.Schema) {
	if schema == nil {
		return
	}
	schema.Required = nil
	for _, prop := range schema.Properties {
		clearRequired(prop)
	}
}

// annotate adds the accepted values of enumerated keys and marks secrets write-only.
func annotate(schema *jsonschema.Schema, prefix string) {
	enums := config.Enumerations()
	for name, prop := range schema.Properties {
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		if values, ok := enums[key]; ok {
			prop.Enum = make([]any, len(values))
			for i, v := range values {
				prop.Enum[i] = v
			}
		}
		if config.IsSensitive(key) {
			prop.WriteOnly = true
		}
		if len(prop.Properties) > 0 {
			annotate(prop, key)
		}
	}
}

func keyName(field reflect.StructField) string {
	for _, tag := range []string{"mapstructure", "yaml"} {
		if name, _, _ := strings.Cut(field.Tag.Get(tag), ","); name != "" && name != "-" {
			return name
		}
	}
	return strings.ToLower(field.Name)
}
