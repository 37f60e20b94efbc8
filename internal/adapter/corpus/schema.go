package corpus

// patternsSchema validates the attack-patterns document. Every key is optional.
const patternsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "attack_types": {
      "type": "array",
      "items": {"type": "string"}
    },
    "port_patterns": {
      "anyOf": [
        {"type": "array", "items": {"type": ["string", "integer"]}},
        {"type": "object", "additionalProperties": {"type": "integer", "minimum": 0}}
      ]
    },
    "port_statistics": {
      "type": "object",
      "additionalProperties": {"type": "integer", "minimum": 0}
    },
    "attack_signatures": {"$ref": "#/definitions/signatures"},
    "traffic_patterns": {"type": ["array", "object"]}
  },
  "definitions": {
    "signatures": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "severity": {"type": "string", "pattern": "^(?i)(low|medium|high|critical)$"}
        }
      }
    }
  }
}`

// signaturesSchema validates a standalone signatures document.
const signaturesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name"],
    "properties": {
      "name": {"type": "string", "minLength": 1},
      "description": {"type": "string"},
      "severity": {"type": "string", "pattern": "^(?i)(low|medium|high|critical)$"}
    }
  }
}`
