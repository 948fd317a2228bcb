package scenario

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ValidationError lists everything wrong with a scenario document
type ValidationError struct {
	Details string
	Errors  []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("invalid scenario: %s", e.Details)
	}
	return fmt.Sprintf("invalid scenario: %s: %s", e.Details, strings.Join(e.Errors, "; "))
}

const sendSchema = `{
	"type": "object",
	"additionalProperties": false,
	"required": ["category"],
	"properties": {
		"category": {"enum": ["basic", "health", "extended"]},
		"type": {"$ref": "#/definitions/u32"},
		"vendor": {"type": "integer", "minimum": 0, "maximum": 16777215},
		"subtype": {"type": "integer", "minimum": 0, "maximum": 255},
		"flags": {"$ref": "#/definitions/u32"},
		"exclusive": {"type": "boolean"},
		"dest": {"$ref": "#/definitions/u32"},
		"payload": {"type": "string"}
	}
}`

const recommendSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"action": {"enum": ["allow", "no_access", "isolate", "no_recommendation"]},
		"evaluation": {"enum": ["compliant", "minor_noncompliant", "major_noncompliant", "error", "dont_know"]},
		"fail": {"type": "boolean"}
	}
}`

const pluginSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"id": {"$ref": "#/definitions/local_id"},
		"versions": {
			"type": "object",
			"additionalProperties": false,
			"required": ["min", "max"],
			"properties": {
				"min": {"$ref": "#/definitions/u32"},
				"max": {"$ref": "#/definitions/u32"}
			}
		},
		"capabilities": {
			"type": "array",
			"uniqueItems": true,
			"items": {"enum": ["connection_events", "basic", "health", "extended", "batch_ending"]}
		},
		"basic_types": {"type": "array", "items": {"$ref": "#/definitions/u32"}},
		"extended_types": {
			"type": "array",
			"items": {
				"type": "object",
				"additionalProperties": false,
				"required": ["vendor", "subtype"],
				"properties": {
					"vendor": {"type": "integer", "minimum": 0, "maximum": 16777215},
					"subtype": {"type": "integer", "minimum": 0, "maximum": 255}
				}
			}
		},
		"on_begin_handshake": {"type": "array", "items": {"$ref": "#/definitions/send"}},
		"rules": {
			"type": "array",
			"items": {
				"type": "object",
				"additionalProperties": false,
				"required": ["match"],
				"properties": {
					"match": {
						"type": "object",
						"additionalProperties": false,
						"properties": {
							"category": {"enum": ["basic", "health", "extended"]},
							"type": {"$ref": "#/definitions/u32"},
							"vendor": {"type": "integer", "minimum": 0, "maximum": 16777215},
							"subtype": {"type": "integer", "minimum": 0, "maximum": 255},
							"payload": {"type": "string"}
						}
					},
					"send": {"type": "array", "items": {"$ref": "#/definitions/send"}},
					"recommend": {"$ref": "#/definitions/recommend"}
				}
			}
		},
		"solicit": {"$ref": "#/definitions/recommend"},
		"fail_bind": {"type": "boolean"}
	}
}`

// documentSchema is the JSON schema (draft-07) every scenario must satisfy
var documentSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": false,
	"required": ["name", "collector", "verifier"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"connection_id": {"$ref": "#/definitions/u32"},
		"max_round_trips": {"type": "integer", "minimum": 0},
		"collector": {"$ref": "#/definitions/plugin"},
		"verifier": {"$ref": "#/definitions/plugin"},
		"expect": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"state": {"enum": ["access allowed", "access isolated", "access none", "delete"]},
				"resolved": {"type": "boolean"},
				"rounds": {"type": "integer", "minimum": 0}
			}
		}
	},
	"definitions": {
		"u32": {"type": "integer", "minimum": 0, "maximum": 4294967295},
		"local_id": {"type": "integer", "minimum": 0, "maximum": 65534},
		"send": ` + sendSchema + `,
		"recommend": ` + recommendSchema + `,
		"plugin": ` + pluginSchema + `
	}
}`

// validate checks raw YAML against documentSchema
func validate(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &ValidationError{Details: fmt.Sprintf("malformed YAML: %v", err)}
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return &ValidationError{Details: fmt.Sprintf("document is not representable as JSON: %v", err)}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewBytesLoader(docJSON),
	)
	if err != nil {
		return &ValidationError{Details: fmt.Sprintf("schema validation failed: %v", err)}
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return &ValidationError{Details: "document does not match schema", Errors: errs}
	}
	return nil
}
