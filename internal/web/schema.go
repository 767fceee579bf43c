// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 64 << 10

// registerRequest is the body of POST /api/register. Any role field the
// client sends is not part of it and is dropped.
type registerRequest struct {
	Username   string `json:"username" jsonschema:"minLength=1"`
	Password   string `json:"password" jsonschema:"minLength=1"`
	Email      string `json:"email,omitempty"`
	FullName   string `json:"fullName,omitempty"`
	Department string `json:"department,omitempty"`
	Position   string `json:"position,omitempty"`
}

type loginRequest struct {
	Username string `json:"username" jsonschema:"minLength=1"`
	Password string `json:"password" jsonschema:"minLength=1"`
}

type updateRoleRequest struct {
	Role string `json:"role" jsonschema:"minLength=1"`
}

// contactRequest leaves content checks to contact.Submission.Validate.
type contactRequest struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message,omitempty"`
}

// bodySchema is a JSON schema reflected from a request struct and compiled
// on first use.
type bodySchema struct {
	name  string
	value any

	once   sync.Once
	schema *jschema.Schema
	err    error
}

var (
	registerSchema   = &bodySchema{name: "register.json", value: &registerRequest{}}
	loginSchema      = &bodySchema{name: "login.json", value: &loginRequest{}}
	updateRoleSchema = &bodySchema{name: "update-role.json", value: &updateRoleRequest{}}
	contactSchema    = &bodySchema{name: "contact.json", value: &contactRequest{}}
)

// generate returns the JSON schema document for the request struct.
func (b *bodySchema) generate() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(b.value)
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, oops.In("web").With("schema", b.name).Wrapf(err, "marshal schema")
	}
	return data, nil
}

func (b *bodySchema) compiled() (*jschema.Schema, error) {
	b.once.Do(func() {
		data, err := b.generate()
		if err != nil {
			b.err = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			b.err = oops.In("web").With("schema", b.name).Wrapf(err, "parse schema")
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(b.name, doc); err != nil {
			b.err = oops.In("web").With("schema", b.name).Wrapf(err, "add schema resource")
			return
		}
		b.schema, b.err = c.Compile(b.name)
		if b.err != nil {
			b.err = oops.In("web").With("schema", b.name).Wrapf(b.err, "compile schema")
		}
	})
	return b.schema, b.err
}

// decodeBody validates the request body against s and decodes it into dst.
// Client mistakes come back as REQUEST_INVALID.
func decodeBody(w http.ResponseWriter, r *http.Request, s *bodySchema, dst any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code(CodeRequestInvalid).Errorf("request body too large")
		}
		return oops.Code(CodeRequestInvalid).Errorf("request body could not be read")
	}

	instance, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return oops.Code(CodeRequestInvalid).Errorf("request body is not valid JSON")
	}

	sch, err := s.compiled()
	if err != nil {
		return err
	}
	if err := sch.Validate(instance); err != nil {
		return oops.Code(CodeRequestInvalid).Errorf("%s", validationMessage(err))
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return oops.Code(CodeRequestInvalid).Errorf("request body does not match the expected shape")
	}
	return nil
}

// validationMessage keeps the per-location lines of a schema validation
// error and drops its header.
func validationMessage(err error) string {
	var causes []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if cause, ok := strings.CutPrefix(line, "- "); ok {
			causes = append(causes, cause)
		}
	}
	if len(causes) == 0 {
		return err.Error()
	}
	return strings.Join(causes, "; ")
}
