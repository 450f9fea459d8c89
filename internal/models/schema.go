// Generates JSON Schema documents describing the wire protocol.

package models

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema of Request and Response, keyed by name.
func Schema() map[string]*jsonschema.Schema {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true, ExpandedStruct: true}
	return map[string]*jsonschema.Schema{
		"request":  r.Reflect(&Request{}),
		"response": r.Reflect(&Response{}),
	}
}

// SchemaJSON returns Schema indented as JSON.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
