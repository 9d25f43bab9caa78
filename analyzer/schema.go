package analyzer

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schemaJSON json.RawMessage
	schemaErr  error
)

// ResponseSchema returns the JSON schema the model is asked to answer with, reflected from Result.
// Meta keywords the model API rejects ($schema, $id) are removed.
func ResponseSchema() (json.RawMessage, error) {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			ExpandedStruct: true,
			DoNotReference: true,
		}
		raw, err := json.Marshal(reflector.Reflect(&Result{}))
		if err != nil {
			schemaErr = err
			return
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			schemaErr = err
			return
		}
		delete(doc, "$schema")
		delete(doc, "$id")
		schemaJSON, schemaErr = json.Marshal(doc)
	})
	return schemaJSON, schemaErr
}
