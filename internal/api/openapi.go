package api

// openAPIDocument describes the public HTTP surface. Served verbatim from
// /openapi.json and /api-schema.
const openAPIDocument = `{
  "openapi": "3.0.3",
  "info": {
    "title": "audio-gateway",
    "description": "On-the-fly audio transformation gateway. Requests name a signature, a source URI, and a query string of processing parameters.",
    "version": "1.0.0"
  },
  "paths": {
    "/{signature}/{audioURI}": {
      "get": {
        "summary": "Process audio and return the transformed bytes",
        "parameters": [
          {"name": "signature", "in": "path", "required": true, "schema": {"type": "string"}, "description": "Hex HMAC-SHA1 of the canonical request, or the literal 'unsafe' when enabled."},
          {"name": "audioURI", "in": "path", "required": true, "schema": {"type": "string"}, "description": "Local path, object key, or http(s) URL of the source audio."},
          {"name": "format", "in": "query", "schema": {"type": "string", "enum": ["mp3", "wav", "flac", "ogg", "m4a", "opus"]}},
          {"name": "codec", "in": "query", "schema": {"type": "string"}},
          {"name": "sample_rate", "in": "query", "schema": {"type": "integer", "minimum": 1}},
          {"name": "channels", "in": "query", "schema": {"type": "integer", "minimum": 1, "maximum": 8}},
          {"name": "bit_rate", "in": "query", "schema": {"type": "integer"}},
          {"name": "bit_depth", "in": "query", "schema": {"type": "integer"}},
          {"name": "quality", "in": "query", "schema": {"type": "number", "minimum": 0, "maximum": 1}},
          {"name": "compression_level", "in": "query", "schema": {"type": "integer"}},
          {"name": "start_time", "in": "query", "schema": {"type": "number", "minimum": 0}},
          {"name": "duration", "in": "query", "schema": {"type": "number", "exclusiveMinimum": 0}},
          {"name": "speed", "in": "query", "schema": {"type": "number", "exclusiveMinimum": 0}},
          {"name": "reverse", "in": "query", "schema": {"type": "boolean"}},
          {"name": "volume", "in": "query", "schema": {"type": "number", "minimum": 0}},
          {"name": "normalize", "in": "query", "schema": {"type": "boolean"}},
          {"name": "normalize_level", "in": "query", "schema": {"type": "number", "minimum": -70, "maximum": 0}},
          {"name": "lowpass", "in": "query", "schema": {"type": "number"}},
          {"name": "highpass", "in": "query", "schema": {"type": "number"}},
          {"name": "bandpass", "in": "query", "schema": {"type": "string"}},
          {"name": "bass", "in": "query", "schema": {"type": "number"}},
          {"name": "treble", "in": "query", "schema": {"type": "number"}},
          {"name": "echo", "in": "query", "schema": {"type": "string"}},
          {"name": "reverb", "in": "query", "schema": {"type": "string"}},
          {"name": "chorus", "in": "query", "schema": {"type": "string"}},
          {"name": "flanger", "in": "query", "schema": {"type": "string"}},
          {"name": "phaser", "in": "query", "schema": {"type": "string"}},
          {"name": "tremolo", "in": "query", "schema": {"type": "string"}},
          {"name": "compressor", "in": "query", "schema": {"type": "string"}},
          {"name": "noise_reduction", "in": "query", "schema": {"type": "string"}},
          {"name": "fade_in", "in": "query", "schema": {"type": "number", "minimum": 0}},
          {"name": "fade_out", "in": "query", "schema": {"type": "number", "minimum": 0}},
          {"name": "cross_fade", "in": "query", "schema": {"type": "number", "minimum": 0}},
          {"name": "custom_filters", "in": "query", "schema": {"type": "string"}},
          {"name": "custom_options", "in": "query", "schema": {"type": "string"}}
        ],
        "responses": {
          "200": {
            "description": "Transformed audio bytes.",
            "headers": {
              "X-Cache": {"schema": {"type": "string", "enum": ["HIT", "MISS", "COALESCED"]}},
              "X-Fingerprint": {"schema": {"type": "string"}}
            }
          },
          "400": {"$ref": "#/components/responses/Error"},
          "401": {"$ref": "#/components/responses/Error"},
          "404": {"$ref": "#/components/responses/Error"},
          "413": {"$ref": "#/components/responses/Error"},
          "502": {"$ref": "#/components/responses/Error"},
          "504": {"$ref": "#/components/responses/Error"}
        }
      }
    },
    "/params/{signature}/{audioURI}": {
      "get": {
        "summary": "Preview the parsed parameter record without processing",
        "responses": {"200": {"description": "Parsed parameters as JSON."}}
      }
    },
    "/meta/{signature}/{audioURI}": {
      "get": {
        "summary": "Probe the source and return its stream and format metadata",
        "responses": {"200": {"description": "Probe output as JSON."}}
      }
    },
    "/health": {
      "get": {
        "summary": "Liveness and dependency probe",
        "responses": {"200": {"description": "Always returned; the body reports status ok, or degraded with the failing dependency."}}
      }
    },
    "/metrics": {
      "get": {"summary": "Prometheus metrics", "responses": {"200": {"description": "Metrics exposition."}}}
    }
  },
  "components": {
    "responses": {
      "Error": {
        "description": "Structured error.",
        "content": {
          "application/json": {
            "schema": {
              "type": "object",
              "properties": {
                "error": {"type": "string"},
                "detail": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}
`
