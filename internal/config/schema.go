package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is the JSON schema every config file must satisfy before it is
// unmarshaled. Cross-field rules live in Config.Validate.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "workspace_path": {"type": "string"},
    "data_dir": {"type": "string"},
    "store": {
      "type": "object",
      "properties": {
        "backend": {"type": "string", "enum": ["sqlite", "qdrant", "memory"]},
        "path": {"type": "string"},
        "qdrant_url": {"type": "string"},
        "qdrant_api_key": {"type": "string"},
        "collection": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"},
        "file_index_collection": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"},
        "timeout_seconds": {"type": "integer", "minimum": 1}
      },
      "additionalProperties": false
    },
    "embedding": {
      "type": "object",
      "properties": {
        "provider": {"type": "string", "enum": ["hashing", "openai"]},
        "model": {"type": "string"},
        "api_key": {"type": "string"},
        "base_url": {"type": "string"},
        "dimension": {"type": "integer", "minimum": 0},
        "timeout_seconds": {"type": "integer", "minimum": 1}
      },
      "additionalProperties": false
    },
    "chunker": {
      "type": "object",
      "properties": {
        "chunk_size_limit": {"type": "integer", "minimum": 1},
        "chunk_overlap": {"type": "integer", "minimum": 0},
        "fence_aware": {"type": "boolean"}
      },
      "additionalProperties": false
    },
    "watcher": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "debounce_seconds": {"type": "integer", "minimum": 0}
      },
      "additionalProperties": false
    },
    "reconcile": {
      "type": "object",
      "properties": {
        "on_startup": {"type": "boolean"},
        "schedule": {"type": "string"}
      },
      "additionalProperties": false
    },
    "retrieval": {
      "type": "object",
      "properties": {
        "default_top_k": {"type": "integer", "minimum": 1},
        "min_relevance": {"type": "number", "minimum": 0, "maximum": 1}
      },
      "additionalProperties": false
    },
    "server": {
      "type": "object",
      "properties": {
        "host": {"type": "string"},
        "port": {"type": "integer", "minimum": 1, "maximum": 65535}
      },
      "additionalProperties": false
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "file": {"type": "string"},
        "audit_file": {"type": "string"},
        "max_size": {"type": "integer", "minimum": 0},
        "max_age": {"type": "integer", "minimum": 0},
        "compress": {"type": "boolean"},
        "redaction": {"type": "boolean"},
        "pretty": {"type": "boolean"}
      },
      "additionalProperties": false
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(Schema)

// ValidateSchema validates a raw JSON config document against Schema.
func ValidateSchema(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}

	return nil
}
