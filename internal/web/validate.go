// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"

	"github.com/passgate/passgate/internal/auth"
)

const schemaBaseURL = "https://passgate.dev/schemas/"

// Request bodies. Every field is required and must be a non-empty string;
// unknown keys are rejected.
type (
	registerRequest struct {
		FullName string `json:"fullName" jsonschema:"minLength=1"`
		Username string `json:"username" jsonschema:"minLength=1"`
		Password string `json:"password" jsonschema:"minLength=1"`
	}

	loginRequest struct {
		Username string `json:"username" jsonschema:"minLength=1"`
		Password string `json:"password" jsonschema:"minLength=1"`
	}

	resetPasswordRequest struct {
		Username    string `json:"username" jsonschema:"minLength=1"`
		NewPassword string `json:"newPassword" jsonschema:"minLength=1"`
	}
)

// policyChecker is implemented by requests with rules a JSON Schema cannot express.
type policyChecker interface {
	checkPolicy() error
}

func (r registerRequest) checkPolicy() error      { return auth.ValidatePassword(r.Password) }
func (r resetPasswordRequest) checkPolicy() error { return auth.ValidatePassword(r.NewPassword) }

// bodySchema is a compiled schema for one request type.
type bodySchema struct {
	schema *jschema.Schema
	// fields is the declared property order, used to report the first failure
	// the way a reader scans the struct.
	fields []string
}

// requestTypes names every request body the API accepts.
var requestTypes = []struct {
	name string
	v    any
}{
	{"register", &registerRequest{}},
	{"login", &loginRequest{}},
	{"reset-password", &resetPasswordRequest{}},
}

func reflectSchema(name string, v any) *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}
	reflected := r.Reflect(v)
	reflected.ID = jsonschema.ID(schemaBaseURL + name + ".json")
	return reflected
}

// GenerateSchemas returns the indented JSON Schema of every request body,
// keyed by name.
func GenerateSchemas() (map[string][]byte, error) {
	out := make(map[string][]byte, len(requestTypes))
	for _, rt := range requestTypes {
		data, err := json.MarshalIndent(reflectSchema(rt.name, rt.v), "", "  ")
		if err != nil {
			return nil, oops.Code("SCHEMA_GENERATE_FAILED").With("schema", rt.name).Wrap(err)
		}
		out[rt.name] = data
	}
	return out, nil
}

// compileSchema reflects v into a JSON Schema and compiles it.
func compileSchema(name string, v any) (*bodySchema, error) {
	reflected := reflectSchema(name, v)

	var fields []string
	if reflected.Properties != nil {
		for pair := reflected.Properties.Oldest(); pair != nil; pair = pair.Next() {
			fields = append(fields, pair.Key)
		}
	}

	data, err := json.Marshal(reflected)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}

	url := string(reflected.ID)
	c := jschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	return &bodySchema{schema: compiled, fields: fields}, nil
}

// errBodyTooLarge marks a request whose body exceeded the configured limit.
var errBodyTooLarge = errors.New("request body too large")

// decodeBody reads the request body, validates it against s and decodes it
// into a T. Validation failures carry auth.CodeValidation and a message naming
// the first offending field.
func decodeBody[T any](r *http.Request, s *bodySchema) (T, error) {
	var out T

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return out, oops.Code(auth.CodeValidation).With("limit", tooLarge.Limit).Wrap(errBodyTooLarge)
		}
		return out, oops.Code(auth.CodeValidation).Errorf("Unable to read request body")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		// An absent body validates as an empty object.
		raw = []byte("{}")
	}

	instance, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return out, oops.Code(auth.CodeValidation).Errorf("Request body must be valid JSON")
	}

	if err := s.schema.Validate(instance); err != nil {
		var verr *jschema.ValidationError
		if errors.As(err, &verr) {
			return out, oops.Code(auth.CodeValidation).Errorf("%s", s.firstViolation(verr))
		}
		return out, oops.Code(auth.CodeValidation).Errorf("Request body is invalid")
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, oops.Code(auth.CodeValidation).Errorf("Request body is invalid")
	}

	if p, ok := any(out).(policyChecker); ok {
		if err := p.checkPolicy(); err != nil {
			return out, err
		}
	}
	return out, nil
}

type violation struct {
	rank    int
	message string
}

// firstViolation picks a single human-readable message from the leaf errors
// of verr, preferring fields in declaration order and unknown keys last.
func (s *bodySchema) firstViolation(verr *jschema.ValidationError) string {
	var found []violation
	s.collect(verr, &found)
	if len(found) == 0 {
		return "Request body is invalid"
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].rank < found[j].rank })
	return found[0].message
}

func (s *bodySchema) collect(verr *jschema.ValidationError, out *[]violation) {
	if len(verr.Causes) > 0 {
		for _, cause := range verr.Causes {
			s.collect(cause, out)
		}
		return
	}

	field := "value"
	if n := len(verr.InstanceLocation); n > 0 {
		field = verr.InstanceLocation[n-1]
	}

	switch k := verr.ErrorKind.(type) {
	case *kind.Required:
		for _, missing := range k.Missing {
			*out = append(*out, violation{s.rank(missing), fmt.Sprintf("%q is required", missing)})
		}
	case *kind.AdditionalProperties:
		for _, extra := range k.Properties {
			*out = append(*out, violation{len(s.fields), fmt.Sprintf("%q is not allowed", extra)})
		}
	case *kind.MinLength:
		*out = append(*out, violation{s.rank(field), fmt.Sprintf("%q is not allowed to be empty", field)})
	case *kind.Type:
		if len(verr.InstanceLocation) == 0 {
			*out = append(*out, violation{-1, fmt.Sprintf("%q must be of type object", field)})
			return
		}
		*out = append(*out, violation{s.rank(field), fmt.Sprintf("%q must be a string", field)})
	default:
		*out = append(*out, violation{s.rank(field), fmt.Sprintf("%q is invalid", field)})
	}
}

func (s *bodySchema) rank(field string) int {
	for i, f := range s.fields {
		if f == field {
			return i
		}
	}
	return len(s.fields)
}
