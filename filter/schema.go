package filter

// documentSchema rejects unknown keys at every level. Pattern values are
// strings; list-valued keys hold alternatives.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "metricPatterns": {"type": "string"},
    "port": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "portIndexes": {"type": "string"},
        "metricNamePatterns": {"$ref": "#/definitions/metricPatterns"}
      }
    },
    "operator": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "operatorNamePatterns": {"type": "string"},
        "metricNamePatterns": {"$ref": "#/definitions/metricPatterns"},
        "inputPorts": {"type": "array", "items": {"$ref": "#/definitions/port"}},
        "outputPorts": {"type": "array", "items": {"$ref": "#/definitions/port"}}
      }
    },
    "pe": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "peIdPatterns": {"type": "string"},
        "metricNamePatterns": {"$ref": "#/definitions/metricPatterns"},
        "operators": {"type": "array", "items": {"$ref": "#/definitions/operator"}}
      }
    },
    "job": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "jobNamePatterns": {"type": "string"},
        "pes": {"type": "array", "items": {"$ref": "#/definitions/pe"}}
      }
    },
    "log": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "levelPatterns": {"type": "string"}
      }
    },
    "instance": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "instanceIdPatterns": {"type": "string"},
        "jobs": {"type": "array", "items": {"$ref": "#/definitions/job"}},
        "logs": {"type": "array", "items": {"$ref": "#/definitions/log"}}
      }
    }
  },
  "type": "array",
  "items": {"$ref": "#/definitions/instance"}
}`
