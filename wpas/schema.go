package wpas

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/dhcw/wpas-referral-proxy/lib/fhirerr"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/jellydator/ttlcache/v3"
)

const (
	CreateReferralSchema = "create-referral.schema.json"
	CancelReferralSchema = "cancel-referral.schema.json"
)

//go:embed schemas/*.json
var builtinSchemas embed.FS

// BuiltinSchemas returns the WPAS request schemas that are built into the binary.
func BuiltinSchemas() fs.FS {
	result, err := fs.Sub(builtinSchemas, "schemas")
	if err != nil {
		panic(err)
	}
	return result
}

// SchemaEvaluation is the result of validating a WPAS request against its schema.
type SchemaEvaluation struct {
	Valid   bool                `json:"valid"`
	Details []SchemaErrorDetail `json:"details,omitempty"`
}

// SchemaErrorDetail lists the violated schema keywords of a single location in the request.
type SchemaErrorDetail struct {
	InstanceLocation string            `json:"instanceLocation"`
	Errors           map[string]string `json:"errors"`
}

// SchemaValidator validates WPAS requests against their JSON schema before they are sent.
// Schemas are read once and kept for the lifetime of the process; it is safe for concurrent use.
type SchemaValidator struct {
	fsys  fs.FS
	cache *ttlcache.Cache[string, *openapi3.Schema]
}

func NewSchemaValidator(fsys fs.FS) *SchemaValidator {
	return &SchemaValidator{
		fsys:  fsys,
		cache: ttlcache.New[string, *openapi3.Schema](ttlcache.WithTTL[string, *openapi3.Schema](ttlcache.NoTTL)),
	}
}

// Validate evaluates the payload against the named schema.
// If the payload is invalid, the evaluation is returned together with a fhirerr.SchemaValidationError holding it as JSON.
func (v *SchemaValidator) Validate(schemaName string, payload any) (SchemaEvaluation, error) {
	schema, err := v.schema(schemaName)
	if err != nil {
		return SchemaEvaluation{}, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return SchemaEvaluation{}, fmt.Errorf("serialize payload: %w", err)
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return SchemaEvaluation{}, fmt.Errorf("deserialize payload: %w", err)
	}
	err = schema.VisitJSON(value, openapi3.MultiErrors())
	if err == nil {
		return SchemaEvaluation{Valid: true}, nil
	}
	evaluation := SchemaEvaluation{Details: details(err)}
	detailsJSON, marshalErr := json.Marshal(evaluation)
	if marshalErr != nil {
		return evaluation, fmt.Errorf("serialize schema evaluation: %w", marshalErr)
	}
	return evaluation, fhirerr.SchemaValidationError{Details: string(detailsJSON)}
}

func (v *SchemaValidator) schema(name string) (*openapi3.Schema, error) {
	if item := v.cache.Get(name); item != nil {
		return item.Value(), nil
	}
	data, err := fs.ReadFile(v.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	schema := new(openapi3.Schema)
	if err := json.Unmarshal(data, schema); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	// Concurrent loads of the same schema all end up with the first one stored.
	item, _ := v.cache.GetOrSet(name, schema)
	return item.Value(), nil
}

func details(err error) []SchemaErrorDetail {
	var result []SchemaErrorDetail
	index := map[string]int{}
	add := func(location, keyword, reason string) {
		i, ok := index[location]
		if !ok {
			i = len(result)
			index[location] = i
			result = append(result, SchemaErrorDetail{InstanceLocation: location, Errors: map[string]string{}})
		}
		if existing, ok := result[i].Errors[keyword]; ok {
			reason = existing + "; " + reason
		}
		result[i].Errors[keyword] = reason
	}
	var collect func(err error)
	collect = func(err error) {
		switch e := err.(type) {
		case openapi3.MultiError:
			for _, inner := range e {
				collect(inner)
			}
		case *openapi3.SchemaError:
			location := ""
			if pointer := e.JSONPointer(); len(pointer) > 0 {
				location = "/" + strings.Join(pointer, "/")
			}
			add(location, e.SchemaField, e.Reason)
		default:
			add("", "error", err.Error())
		}
	}
	collect(err)
	return result
}
