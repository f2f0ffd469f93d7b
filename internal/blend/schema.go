package blend

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// snapshotSchema constrains snapshots pushed over the API before they
// reach the blender. Unknown fields are tolerated; wrong shapes are not.
const snapshotSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "prices": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["symbol", "price_usd"],
        "properties": {
          "symbol": {"type": "string", "minLength": 1},
          "price_usd": {"type": "number", "minimum": 0},
          "change_24h": {"type": "number"}
        }
      }
    },
    "defi": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["protocol", "chain"],
        "properties": {
          "protocol": {"type": "string", "minLength": 1},
          "chain": {"type": "string", "minLength": 1},
          "apy": {"type": "number"},
          "tvl": {"type": "number", "minimum": 0},
          "tvl_change_24h": {"type": "number"}
        }
      }
    },
    "fear_greed": {
      "type": "object",
      "required": ["value"],
      "properties": {
        "value": {"type": "integer", "minimum": 0, "maximum": 100},
        "label": {"type": "string"}
      }
    },
    "news": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "source": {"type": "string"}
        }
      }
    },
    "tweets": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["author", "text"],
        "properties": {
          "author": {"type": "string"},
          "text": {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("snapshot.json", snapshotSchema)

// ParseSnapshot validates raw JSON against the snapshot schema and
// unmarshals it. Returns an error for malformed payloads; partial
// payloads (missing sub-data) are valid by design.
func ParseSnapshot(raw []byte) (*RealWorldSnapshot, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("snapshot json: %w", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("snapshot schema: %w", err)
	}
	var snap RealWorldSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("snapshot decode: %w", err)
	}
	return &snap, nil
}
