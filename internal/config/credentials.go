package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var ErrInvalidCredentials = errors.New("config: invalid credentials file")

// Credentials populate the portal login form.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

const credentialsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["username", "password"],
	"properties": {
		"username": {"type": "string", "minLength": 1},
		"password": {"type": "string", "minLength": 1}
	}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func credentialsValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("credentials.json", strings.NewReader(credentialsSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("credentials.json")
	})
	return compiledSchema, schemaErr
}

// LoadCredentials reads a JSON or YAML credentials file and validates it
// against the credentials schema before decoding.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials %s: %w", path, err)
	}

	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Credentials{}, fmt.Errorf("%w: parse yaml: %v", ErrInvalidCredentials, err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return Credentials{}, fmt.Errorf("%w: parse json: %v", ErrInvalidCredentials, err)
		}
	}

	schema, err := credentialsValidator()
	if err != nil {
		return Credentials{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	obj, _ := doc.(map[string]any)
	creds := Credentials{}
	creds.Username, _ = obj["username"].(string)
	creds.Password, _ = obj["password"].(string)
	return creds, nil
}
