package tx

import (
	"embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// schemaFiles maps transaction kinds to their payload schema. Kinds without
// an entry carry free-form payloads and skip schema validation.
var schemaFiles = map[Kind]string{
	KindAccess:   "schemas/access_payload.json",
	KindFirmware: "schemas/firmware_payload.json",
	KindAlert:    "schemas/alert_payload.json",
}

// ValidatePayload checks a payload against the JSON Schema registered for
// the kind, if any. A schema violation is returned as an error listing the
// failed constraints.
func ValidatePayload(kind Kind, payload map[string]interface{}) error {
	path, ok := schemaFiles[kind]
	if !ok {
		return nil
	}
	schemaBytes, err := schemaFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load payload schema for %q: %w", kind, err)
	}
	schemaLoader := gojsonschema.NewBytesLoader(schemaBytes)
	documentLoader := gojsonschema.NewGoLoader(payload)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		errStr := ""
		for _, e := range result.Errors() {
			errStr += e.String() + "; "
		}
		return fmt.Errorf("payload failed schema validation: %s", errStr)
	}
	return nil
}
