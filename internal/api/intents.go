package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nerrad567/gray-logic-hub/internal/intent"
)

// matchRequestSchema constrains the envelope to at most 100 intents.
// Items are decoded one by one so that one bad item does not fail the
// whole batch.
const matchRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["intents"],
  "properties": {
    "intents": {
      "type": "array",
      "maxItems": 100
    }
  }
}`

const matchSchemaURL = "match-request.json"

func compileMatchSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(matchSchemaURL, strings.NewReader(matchRequestSchema)); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by New
	}
	return compiler.Compile(matchSchemaURL) //nolint:wrapcheck // wrapped by New
}

type matchRequest struct {
	Intents []json.RawMessage `json:"intents"`
}

type cacheInfo struct {
	HasData   bool  `json:"has_data"`
	AgeMillis int64 `json:"age_ms"`
	Stale     bool  `json:"stale"`
}

type matchResponse struct {
	intent.Batch
	Cache cacheInfo `json:"cache"`
}

// handleMatchIntents serves POST /intents/match. The body is checked
// against matchRequestSchema before decoding. Per-intent problems come
// back in outcomes with a 200.
func (s *Server) handleMatchIntents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeBadRequest(w, "reading request body failed")
		return
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.schema.Validate(doc); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, schemaMessage(err))
		return
	}

	var req matchRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	descriptors := make([]intent.Descriptor, len(req.Intents))
	for i, raw := range req.Intents {
		descriptors[i] = decodeDescriptor(raw)
	}

	batch := s.matcher.Match(descriptors)
	st := s.cache.Status()
	writeJSON(w, http.StatusOK, matchResponse{
		Batch: batch,
		Cache: cacheInfo{HasData: st.HasData, AgeMillis: st.AgeMillis, Stale: st.HasData && st.IsExpired},
	})
}

// decodeDescriptor decodes one intent. An item of the wrong shape becomes
// a rejected descriptor so it is reported in its own outcome.
func decodeDescriptor(raw json.RawMessage) intent.Descriptor {
	var d intent.Descriptor
	err := json.Unmarshal(raw, &d)
	if err == nil {
		return d
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return intent.Rejected(&intent.ValidationError{Field: "intent", Reason: "must be an object"})
		}
		return intent.Rejected(&intent.ValidationError{
			Field:  typeErr.Field,
			Reason: "must be of type " + jsonKind(typeErr.Type.Kind().String()),
		})
	}
	return intent.Rejected(&intent.ValidationError{Field: "intent", Reason: "is not valid JSON"})
}

// jsonKind names a Go kind the way a JSON client would.
func jsonKind(kind string) string {
	switch kind {
	case "string":
		return "string"
	case "map", "struct":
		return "object"
	case "slice", "array":
		return "array"
	case "bool":
		return "boolean"
	case "ptr", "interface":
		return "value"
	default:
		return "number"
	}
}

// schemaMessage reduces a jsonschema error to its most specific cause.
func schemaMessage(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	loc := verr.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + verr.Message
}
