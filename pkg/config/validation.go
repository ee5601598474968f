package config

import (
	"net/url"
	"reflect"
	"slices"
	"time"

	"github.com/spf13/cast"
)

const redactedValue = "***"

// sensitiveKeys are masked even when they did not come from a secrets file.
var sensitiveKeys = map[string]bool{
	"database.secret_access_key": true,
	"database.session_token":     true,
}

// Validate checks the configuration with the default loader rules.
func (c *Config) Validate() error {
	return (&ViperLoader{}).Validate(c)
}

// Settings returns the configuration as nested maps keyed by mapstructure names, with
// durations rendered as strings.
func (c *Config) Settings() map[string]any {
	return structSettings(reflect.ValueOf(c).Elem())
}

// Redacted is Settings with secrets masked. Every leaf present in secrets (as returned by
// LoadWithSecrets) is masked, as are credentials and database and cache URL passwords.
func (c *Config) Redacted(secrets map[string]any) map[string]any {
	settings := c.Settings()
	maskSettings(settings, secrets, "")
	for _, section := range []string{"database", "cache"} {
		if values, ok := settings[section].(map[string]any); ok {
			if raw, ok := values["url"].(string); ok && raw != redactedValue {
				values["url"] = redactURL(raw)
			}
		}
	}
	return settings
}

func structSettings(v reflect.Value) map[string]any {
	out := make(map[string]any, v.NumField())
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)
		if !value.CanInterface() {
			continue
		}

		name := field.Name
		if tag := field.Tag.Get("mapstructure"); tag != "" && tag != "-" {
			name = tag
		}

		switch {
		case value.Type() == reflect.TypeOf(time.Duration(0)):
			out[name] = value.Interface().(time.Duration).String()
		case value.Kind() == reflect.Struct:
			out[name] = structSettings(value)
		default:
			out[name] = value.Interface()
		}
	}
	return out
}

func maskSettings(settings, secrets map[string]any, prefix string) {
	for key, value := range settings {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		secret, inSecrets := secrets[key]

		if nested, ok := value.(map[string]any); ok {
			maskSettings(nested, cast.ToStringMap(secret), path)
			continue
		}
		if (inSecrets || sensitiveKeys[path]) && !isZero(value) {
			settings[key] = redactedValue
		}
	}
}

func isZero(value any) bool {
	return value == nil || reflect.ValueOf(value).IsZero()
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

// Enumerations returns the accepted values of the enumerated settings, keyed by dotted path.
func Enumerations() map[string][]string {
	return map[string][]string{
		"database.type":            slices.Clone(validDatabaseTypes),
		"cache.type":               slices.Clone(validCacheTypes),
		"observability.log_level":  slices.Clone(validLogLevels),
		"observability.log_format": slices.Clone(validLogFormats),
	}
}

// IsSensitive reports whether the dotted key always holds a secret.
func IsSensitive(key string) bool {
	return sensitiveKeys[key]
}
