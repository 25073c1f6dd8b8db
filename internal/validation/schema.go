package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

const correctedDataSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["structured", "blocks"],
  "properties": {
    "structured": {
      "type": "object",
      "properties": {
        "contract_number": {"type": "string", "maxLength": 64},
        "effective_date": {"type": "string"},
        "expiration_date": {"type": "string"},
        "total_value": {"type": "number", "exclusiveMinimum": 0},
        "payment_terms": {"type": "array", "items": {"type": "string"}},
        "parties": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name", "role"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "role": {"type": "string", "minLength": 1}
            }
          }
        },
        "items": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "quantity": {"type": "integer", "minimum": 0},
              "unit_price": {"type": "number", "minimum": 0}
            }
          }
        }
      }
    },
    "blocks": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["text", "confidence", "page_number"],
        "properties": {
          "text": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "page_number": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func correctedSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("corrected.json", strings.NewReader(correctedDataSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("corrected.json")
	})
	return compiledSchema, schemaErr
}

// CheckCorrected verifies corrected data is structurally valid.
func CheckCorrected(data document.CorrectedData) error {
	schema, err := correctedSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal corrected data: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal corrected data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("corrected data does not match schema: %w", err)
	}
	return nil
}
