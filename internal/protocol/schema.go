package protocol

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "tileboard-message.json"

const messageSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"type": "string", "minLength": 1}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"enum": ["tile_update", "tile_created"]}}},
      "then": {"required": ["tile"], "properties": {"tile": {"$ref": "#/$defs/tile"}}}
    },
    {
      "if": {"properties": {"type": {"const": "tile_deleted"}}},
      "then": {"required": ["tile_id"], "properties": {"tile_id": {"type": "string", "minLength": 1}}}
    },
    {
      "if": {"properties": {"type": {"enum": ["user_presence_update", "user_joined", "user_left"]}}},
      "then": {
        "required": ["user_id"],
        "properties": {
          "user_id": {"type": "string", "minLength": 1},
          "status": {"$ref": "#/$defs/status"},
          "tile_x": {"type": "integer"},
          "tile_y": {"type": "integer"},
          "is_editing": {"type": "boolean"}
        }
      }
    },
    {
      "if": {"properties": {"type": {"const": "user_presence"}}},
      "then": {
        "required": ["presence_type", "user_id"],
        "properties": {
          "presence_type": {"enum": ["status_change", "editing_tile", "heartbeat"]},
          "user_id": {"type": "string", "minLength": 1},
          "status": {"$ref": "#/$defs/status"}
        }
      }
    }
  ],
  "$defs": {
    "status": {"enum": ["online", "away", "offline"]},
    "tile": {
      "type": "object",
      "required": ["x", "y"],
      "properties": {
        "id": {"type": "string"},
        "x": {"type": "integer"},
        "y": {"type": "integer"},
        "pixel_data": {"type": ["array", "null"], "items": {"type": ["array", "null"]}},
        "owner_id": {"type": "string"}
      }
    }
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(messageSchema))
		if err != nil {
			compileErr = fmt.Errorf("failed to parse message schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("failed to add message schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Validate checks raw against the realtime message schema.
func Validate(raw []byte) error {
	sch, err := schema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	return nil
}
