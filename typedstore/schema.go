package typedstore

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaViolation is an ambient decode-time failure distinct from the
// spec's ObjectTooLarge/DwnInconsistent: a decoded object's JSON does not
// conform to its collection's schema. Treated like any other decode
// failure: decode logs it at WARN and returns errs.ErrDwnInconsistent, so
// Get and List fail rather than skipping the object.
var ErrSchemaViolation = fmt.Errorf("object violates collection schema")

// SchemaProvider resolves a schema URI to its JSON Schema document. The
// out-of-scope DWN message engine would normally host these; callers that
// don't need shape validation can leave it nil.
type SchemaProvider interface {
	Load(schemaURI string) (string, error)
}

// StaticSchemaProvider serves schema documents from an in-process map,
// used by agents that embed their collection schemas rather than
// resolving them remotely.
type StaticSchemaProvider map[string]string

func (p StaticSchemaProvider) Load(schemaURI string) (string, error) {
	doc, ok := p[schemaURI]
	if !ok {
		return "", fmt.Errorf("no schema registered for %q", schemaURI)
	}
	return doc, nil
}

// schemaCache compiles and caches a gojsonschema.Schema per schema URI.
// Each Store has its own cache, so stores sharing a SchemaProvider each
// load and compile the schema themselves.
type schemaCache struct {
	provider SchemaProvider
	mu       sync.Mutex
	compiled map[string]*gojsonschema.Schema
}

func newSchemaCache(provider SchemaProvider) *schemaCache {
	return &schemaCache{provider: provider, compiled: make(map[string]*gojsonschema.Schema)}
}

func (c *schemaCache) validate(schemaURI string, document []byte) error {
	if c == nil || c.provider == nil || schemaURI == "" {
		return nil
	}

	c.mu.Lock()
	schema, ok := c.compiled[schemaURI]
	c.mu.Unlock()

	if !ok {
		doc, err := c.provider.Load(schemaURI)
		if err != nil {
			return fmt.Errorf("load schema %q: %w", schemaURI, err)
		}
		schema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
		if err != nil {
			return fmt.Errorf("compile schema %q: %w", schemaURI, err)
		}
		c.mu.Lock()
		c.compiled[schemaURI] = schema
		c.mu.Unlock()
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("validate against schema %q: %w", schemaURI, err)
	}
	if !result.Valid() {
		return ErrSchemaViolation
	}
	return nil
}
