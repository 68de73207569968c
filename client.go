package fissile

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the id a frontend assigns to a forwarded call.
// Backends log it with the call.
const RequestIDHeader = "X-Fissile-Request-Id"

var clientLogger = loggo.GetLogger("fissile.client")

// retry.Call refuses a zero delay.
const minRetryDelay = time.Millisecond

// responseEnvelope is the body written by views.
type responseEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *wireError      `json:"error,omitempty"`
}

// client forwards calls from a frontend to a backend.
type client struct {
	settings Settings
	http     *http.Client
	clock    clock.Clock
}

// newClient creates the forwarding client for a service.  With
// UseTestClient set, requests never leave the process: they are served
// by local, the service's own router.
func newClient(settings Settings, local http.Handler) *client {
	hc := &http.Client{}
	if settings.UseTestClient {
		hc.Transport = &inProcessTransport{handler: local}
	}
	return &client{
		settings: settings,
		http:     hc,
		clock:    clock.WallClock,
	}
}

// inProcessTransport is an http.RoundTripper that hands requests
// directly to a handler.
type inProcessTransport struct {
	handler http.Handler
}

func (t *inProcessTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rec := httptest.NewRecorder()
	t.handler.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

func (c *client) target(route string) (*url.URL, error) {
	base := c.settings.BackendURL
	if c.settings.UseTestClient {
		base = "http://fissile.test"
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + route)
	if err != nil {
		return nil, errors.NewNotValid(err, "backend url")
	}
	return u, nil
}

func (c *client) newRequest(ctx context.Context, method string, target url.URL, args, kwargs string) (*http.Request, error) {
	form := url.Values{}
	form.Set(ArgsVar, args)
	if kwargs != "" {
		form.Set(KwargsVar, kwargs)
	}
	var body io.Reader
	switch method {
	case http.MethodGet:
		target.RawQuery = form.Encode()
	case http.MethodPost:
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// retryable reports whether a response means the call never reached the
// function.  Gateway statuses are retried unless the body is an error
// written by a view: the function ran and failed, for example with a
// timeout of its own.
func retryable(status int, body []byte) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
	default:
		return false
	}
	var env responseEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		return false
	}
	return true
}

// forward sends one call to the backend and decodes the result.
func (c *client) forward(ctx context.Context, f *Func, in []reflect.Value) (reflect.Value, error) {
	args, kwargs, err := f.sig.encode(in)
	if err != nil {
		return reflect.Value{}, errors.Trace(err)
	}
	target, err := c.target(f.route)
	if err != nil {
		return reflect.Value{}, errors.Trace(err)
	}
	if c.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.settings.Timeout)
		defer cancel()
	}
	requestID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "fissile.forward "+f.name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("fissile.func", f.name),
			attribute.String("fissile.request_id", requestID),
			attribute.String("http.method", f.method),
			attribute.String("http.url", target.String()),
		))
	defer span.End()

	attempts := c.settings.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := c.settings.RetryDelay
	if delay <= 0 {
		delay = minRetryDelay
	}
	var status int
	var body []byte
	err = retry.Call(retry.CallArgs{
		Func: func() error {
			status, body = 0, nil
			req, err := c.newRequest(ctx, f.method, *target, args, kwargs)
			if err != nil {
				return errors.Trace(err)
			}
			req.Header.Set(RequestIDHeader, requestID)
			otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
			resp, err := c.http.Do(req)
			if err != nil {
				return errors.Trace(err)
			}
			defer resp.Body.Close()
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return errors.Annotate(err, "reading response")
			}
			status = resp.StatusCode
			if retryable(status, body) {
				return errors.Errorf("backend returned %s", resp.Status)
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			clientLogger.Debugf("%s attempt %d (request %s): %v", f.name, attempt, requestID, err)
		},
		Attempts: attempts,
		Delay:    delay,
		Clock:    c.clock,
		Stop:     ctx.Done(),
	})
	if err != nil && status == 0 {
		err = retry.LastError(err)
		if ctx.Err() == context.DeadlineExceeded {
			err = errors.NewTimeout(err, "forwarding "+f.name)
		} else {
			err = errors.Annotatef(err, "forwarding %s", f.name)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return reflect.Value{}, err
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	result, err := c.decodeResponse(f, status, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return reflect.Value{}, err
	}
	return result, nil
}

func (c *client) decodeResponse(f *Func, status int, body []byte) (reflect.Value, error) {
	var env responseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		if status >= http.StatusBadRequest {
			return reflect.Value{}, statusError(f.name, status, strings.TrimSpace(string(body)))
		}
		return reflect.Value{}, errors.Annotatef(err, "decoding response to %s", f.name)
	}
	if env.Error != nil {
		return reflect.Value{}, env.Error.toError(f.name, status)
	}
	if status >= http.StatusBadRequest {
		return reflect.Value{}, statusError(f.name, status, strings.TrimSpace(string(body)))
	}
	result, err := f.sig.decodeResult(env.Result)
	return result, errors.Trace(err)
}
