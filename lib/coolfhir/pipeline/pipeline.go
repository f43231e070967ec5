package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

// New creates a response pipeline that marshals resources as FHIR JSON.
func New() Instance {
	return Instance{}
}

// Instance builds HTTP responses from FHIR resources, applying response transformers before they're written.
type Instance struct {
	httpResponseTransformers []HttpResponseTransformer
}

// Do executes the pipeline, returning an error if marshalling fails.
func (p Instance) Do(httpResponse *http.Response, resource any) error {
	responseBody, err := marshalResponse(resource)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	if httpResponse.Header == nil {
		httpResponse.Header = http.Header{}
	}
	for _, transformer := range p.httpResponseTransformers {
		transformer.Transform(&httpResponse.StatusCode, &responseBody, httpResponse.Header)
	}
	if httpResponse.Header.Get("Content-Type") == "" {
		httpResponse.Header.Set("Content-Type", "application/fhir+json")
	}
	httpResponse.Header.Set("Content-Length", strconv.Itoa(len(responseBody)))
	httpResponse.Body = io.NopCloser(bytes.NewReader(responseBody))
	return nil
}

// DoAndWrite executes the pipeline, writing the response to the given HTTP response writer.
// If an error occurs, an internal server error is written to the response.
func (p Instance) DoAndWrite(httpResponseWriter http.ResponseWriter, resource any, responseStatusCode int) {
	httpResponse := &http.Response{
		Header:     http.Header{},
		StatusCode: responseStatusCode,
	}
	err := p.Do(httpResponse, resource)
	var responseBody []byte
	if err == nil {
		responseBody, err = io.ReadAll(httpResponse.Body)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal pipeline response")
		httpResponse.StatusCode = http.StatusInternalServerError
		responseBody = []byte(`{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"exception","diagnostics":"Failed to marshal response"}]}`)
		httpResponse.Header.Set("Content-Type", "application/fhir+json")
		httpResponse.Header.Set("Content-Length", strconv.Itoa(len(responseBody)))
	}
	for key, value := range httpResponse.Header {
		httpResponseWriter.Header()[key] = value
	}
	httpResponseWriter.WriteHeader(httpResponse.StatusCode)
	if _, err = httpResponseWriter.Write(responseBody); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

// AppendResponseTransformer makes a copy of the pipeline and adds the given HTTP response transformer.
// It returns the copy and leaves the original pipeline unchanged.
func (p Instance) AppendResponseTransformer(transformer HttpResponseTransformer) Instance {
	transformers := make([]HttpResponseTransformer, 0, len(p.httpResponseTransformers)+1)
	transformers = append(transformers, p.httpResponseTransformers...)
	p.httpResponseTransformers = append(transformers, transformer)
	return p
}

type HttpResponseTransformer interface {
	Transform(responseStatus *int, responseBody *[]byte, responseHeaders map[string][]string)
}

var _ HttpResponseTransformer = &ResponseHeaderSetter{}

// ResponseHeaderSetter is a transformer that sets HTTP response headers.
type ResponseHeaderSetter http.Header

func (r ResponseHeaderSetter) Transform(_ *int, _ *[]byte, responseHeaders map[string][]string) {
	for headerName, headerValues := range r {
		responseHeaders[headerName] = headerValues
	}
}

func marshalResponse(resource any) ([]byte, error) {
	if d, ok := resource.([]byte); ok {
		return d, nil
	} else if reader, ok := resource.(io.Reader); ok {
		return io.ReadAll(reader)
	}
	return json.Marshal(resource)
}
