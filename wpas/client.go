//go:generate mockgen -destination=./client_mock.go -package=wpas -source=client.go
package wpas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dhcw/wpas-referral-proxy/lib/fhirerr"
	"github.com/dhcw/wpas-referral-proxy/lib/httpserv"
	"github.com/dhcw/wpas-referral-proxy/lib/logging"
	"github.com/dhcw/wpas-referral-proxy/lib/otel"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	baseotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = baseotel.Tracer("wpas")

// maxResponseSize limits how much of a WPAS response is read.
const maxResponseSize = 1 << 20

// retryableStatusCodes are the response statuses after which a call is attempted again.
var retryableStatusCodes = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client calls the WPAS referral API.
type Client interface {
	CreateReferral(ctx context.Context, request CreateReferralRequest) (*ReferralResponse, error)
	CancelReferral(ctx context.Context, request CancelReferralRequest) (*ReferralResponse, error)
	GetReferral(ctx context.Context, referralID string) (*ReferralResponse, error)
}

var _ Client = &HTTPClient{}

// HTTPClient is the Client that calls WPAS over HTTP, retrying transient failures.
//
// Errors are classified for the FHIR error translation: a non-success response becomes a fhirerr.BackendCallError,
// an unreachable backend a fhirerr.BackendTransportError and an expired timeout a fhirerr.BackendTimeoutError.
type HTTPClient struct {
	config     Config
	baseURL    *url.URL
	httpClient *retryablehttp.Client
}

// NewClient creates a WPAS client. The transport may be nil, in which case a pooled transport is used.
func NewClient(ctx context.Context, config Config, transport http.RoundTripper) (*HTTPClient, error) {
	baseURL, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid WPAS url: %w", err)
	}
	httpClient := retryablehttp.NewClient()
	if transport == nil {
		transport = httpClient.HTTPClient.Transport
	}
	transport, err = authenticatingTransport(ctx, config.Auth, otelhttp.NewTransport(transport))
	if err != nil {
		return nil, err
	}
	httpClient.HTTPClient.Transport = transport
	httpClient.HTTPClient.Timeout = config.AttemptTimeout
	httpClient.RetryMax = config.Retry.MaxRetries
	httpClient.RetryWaitMin = config.Retry.Delay
	httpClient.RetryWaitMax = max(config.Retry.MaxDelay, config.Retry.Delay)
	httpClient.CheckRetry = checkRetry
	httpClient.Backoff = backoff(config.Retry.Backoff)
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	httpClient.Logger = leveledLogger{logger: log.Logger.With().Str("component", "wpas").Logger()}
	return &HTTPClient{
		config:     config,
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

func (c *HTTPClient) CreateReferral(ctx context.Context, request CreateReferralRequest) (*ReferralResponse, error) {
	return c.do(ctx, "CreateReferral", http.MethodPost, c.baseURL.JoinPath(c.config.CreateEndpoint), request)
}

func (c *HTTPClient) CancelReferral(ctx context.Context, request CancelReferralRequest) (*ReferralResponse, error) {
	return c.do(ctx, "CancelReferral", http.MethodPost, c.baseURL.JoinPath(c.config.CancelEndpoint), request)
}

func (c *HTTPClient) GetReferral(ctx context.Context, referralID string) (*ReferralResponse, error) {
	endpoint := strings.ReplaceAll(c.config.GetEndpoint, referralIDPlaceholder, url.PathEscape(referralID))
	return c.do(ctx, "GetReferral", http.MethodGet, c.baseURL.JoinPath(endpoint), nil)
}

func (c *HTTPClient) do(ctx context.Context, operation string, method string, endpoint *url.URL, payload any) (*ReferralResponse, error) {
	ctx, span := tracer.Start(ctx, "wpas."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(otel.BackendOperation, operation),
			attribute.String(otel.HTTPMethod, method),
			attribute.String(otel.HTTPURL, endpoint.String()),
		),
	)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var body any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, otel.Error(span, fhirerr.ProxyInternalError{Message: "unable to serialize WPAS request", Cause: err})
		}
		body = data
	}
	request, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, otel.Error(span, fhirerr.ProxyInternalError{Message: "unable to create WPAS request", Cause: err})
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	requestID, correlationID := logging.RequestIDs(ctx)
	if requestID != "" {
		request.Header.Set(httpserv.RequestIDHeader, requestID)
	}
	if correlationID != "" {
		request.Header.Set(httpserv.CorrelationIDHeader, correlationID)
	}

	start := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str(logging.FieldUrl, endpoint.String()).
			Dur(logging.FieldDuration, time.Since(start)).
			Msgf("WPAS %s call failed", operation)
		return nil, otel.Error(span, classify(err))
	}
	defer response.Body.Close()
	span.SetAttributes(attribute.Int(otel.HTTPStatusCode, response.StatusCode))
	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, otel.Error(span, classify(err))
	}
	log.Ctx(ctx).Debug().
		Int(logging.FieldStatusCode, response.StatusCode).
		Dur(logging.FieldDuration, time.Since(start)).
		Msgf("WPAS %s call completed", operation)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, otel.Error(span, fhirerr.BackendCallError{
			StatusCode: response.StatusCode,
			Message:    problemMessage(responseBody),
		})
	}
	var result ReferralResponse
	if err := json.Unmarshal(responseBody, &result); err != nil {
		return nil, otel.Error(span, fhirerr.ProxyInternalError{Message: "unable to parse WPAS response", Cause: err})
	}
	return &result, nil
}

// classify turns an error of the HTTP round trip into the error type that determines the outward status code.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fhirerr.BackendTimeoutError{Cause: err}
	}
	return fhirerr.BackendTransportError{Cause: err}
}

// problemMessage returns the problem details in the response body, or the raw body if it doesn't hold any.
func problemMessage(body []byte) string {
	var problem Problem
	if err := json.Unmarshal(body, &problem); err == nil {
		if message := problem.String(); message != "" {
			return message
		}
	}
	return strings.TrimSpace(string(body))
}

func checkRetry(ctx context.Context, response *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		// The default policy knows which transport errors won't go away by retrying (e.g. invalid certificates).
		return retryablehttp.DefaultRetryPolicy(ctx, response, err)
	}
	return retryableStatusCodes[response.StatusCode], nil
}

// backoff returns a jittered backoff: the delay doubles every attempt (exponential) or stays the same (constant),
// plus up to 20% random jitter, never exceeding the maximum delay.
func backoff(strategy string) retryablehttp.Backoff {
	return func(minDelay, maxDelay time.Duration, attemptNum int, _ *http.Response) time.Duration {
		delay := minDelay
		if strategy == BackoffExponential {
			delay = minDelay << min(attemptNum, 30)
			if delay <= 0 || delay > maxDelay {
				delay = maxDelay
			}
		}
		if jitter := int64(delay) / 5; jitter > 0 {
			delay += time.Duration(rand.Int64N(jitter))
		}
		return min(delay, maxDelay)
	}
}
