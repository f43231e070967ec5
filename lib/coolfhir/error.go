package coolfhir

import (
	"context"
	"net/http"

	"github.com/dhcw/wpas-referral-proxy/lib/coolfhir/pipeline"
	"github.com/dhcw/wpas-referral-proxy/lib/fhirerr"
	"github.com/dhcw/wpas-referral-proxy/lib/logging"
	"github.com/rs/zerolog/log"
)

// WriteOperationOutcomeFromError writes an OperationOutcome based on the given error as HTTP response.
// The status code and issues are determined by fhirerr.Translate. The error itself is logged, since the response may only
// contain generic diagnostics.
func WriteOperationOutcomeFromError(ctx context.Context, err error, desc string, httpResponse http.ResponseWriter, additionalHeaders ...map[string]string) fhirerr.Translation {
	translation := fhirerr.Translate(err)
	event := log.Ctx(ctx).Warn()
	if translation.StatusCode >= 500 {
		event = log.Ctx(ctx).Error()
	}
	event.Err(err).
		Str(logging.FieldCategory, string(translation.Category)).
		Int(logging.FieldStatusCode, translation.StatusCode).
		Msgf("%s failed", desc)
	SendResponse(httpResponse, translation.StatusCode, translation.Outcome, additionalHeaders...)
	return translation
}

// SendResponse writes the resource as FHIR JSON with the given status code.
func SendResponse(httpResponse http.ResponseWriter, httpStatus int, resource any, additionalHeaders ...map[string]string) {
	p := pipeline.New()
	for _, headers := range additionalHeaders {
		setter := pipeline.ResponseHeaderSetter{}
		for key, value := range headers {
			setter[http.CanonicalHeaderKey(key)] = []string{value}
		}
		p = p.AppendResponseTransformer(setter)
	}
	p.DoAndWrite(httpResponse, resource, httpStatus)
}
