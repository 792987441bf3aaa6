/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llmeval

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// ResponseSchema returns the JSON schema for stage replies. Additional
// properties are disallowed so providers with structured output enforcement
// reject extra keys at generation time instead of leaving it to the parser.
func ResponseSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
	}
	return r.Reflect(&stageResponse{})
}

// ResponseSchemaJSON renders ResponseSchema for providers that accept raw
// schema bytes.
func ResponseSchemaJSON() ([]byte, error) {
	return json.Marshal(ResponseSchema())
}
