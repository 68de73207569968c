package fissile

// TODO: bind mux path variables ({id}) to positional arguments.

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/FredAtLandMetrics/fissile")

// Func is a function registered with a service.  It can be called
// like the function it wraps (Call, Bind) and served as a web
// endpoint (View, Path).
type Func struct {
	route   string
	name    string
	method  string
	fn      reflect.Value
	sig     *signature
	service *serviceCore
}

// Route is the registration entry for a Func: everything needed to
// bind its view to a router.
type Route struct {
	Pattern string
	Name    string
	Method  string
	Handler http.HandlerFunc
}

func newFunc(sc *serviceCore, route, name, method string, fn interface{}) *Func {
	describe := fmt.Sprintf("%s[%s]", sc.name, name)
	if name == "" {
		panic(describe + ": name must not be empty")
	}
	if !strings.HasPrefix(route, "/") {
		panic(fmt.Sprintf("%s: route %q must start with /", describe, route))
	}
	if strings.ContainsAny(route, "{}") {
		panic(fmt.Sprintf("%s: route %q: path variables are not supported", describe, route))
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodPost
	}
	if fn == nil {
		panic(describe + ": nil function")
	}
	sig, mismatch := getSignature(reflect.TypeOf(fn))
	if mismatch != "" {
		panic(fmt.Sprintf("%s: could not use %T as a function: %s", describe, fn, mismatch))
	}
	return &Func{
		route:   route,
		name:    name,
		method:  method,
		fn:      reflect.ValueOf(fn),
		sig:     sig,
		service: sc,
	}
}

// Name returns the name the Func was registered with.
func (f *Func) Name() string { return f.name }

// Pattern returns the route pattern of the Func's view.
func (f *Func) Pattern() string { return f.route }

// Method returns the HTTP method of the Func's view.
func (f *Func) Method() string { return f.method }

// Call invokes the function.  In frontend mode the call is forwarded
// to the backend; otherwise it runs in this process.
//
// args are the positional arguments followed, optionally, by the
// keyword argument struct.  Arguments that are left out take their
// zero values.  The context must not be included in args.
//
// The returned value is nil when the function has no result.
func (f *Func) Call(ctx context.Context, args ...interface{}) (interface{}, error) {
	in, err := f.sig.values(args)
	if err != nil {
		return nil, errors.Annotatef(err, "calling %s", f.name)
	}
	out, err := f.dispatch(ctx, in)
	if err != nil || !out.IsValid() {
		return nil, err
	}
	return out.Interface(), nil
}

// CallJSON is Call with arguments in their wire form: args is a JSON
// array and kwargs a JSON object.  Either may be empty.
func (f *Func) CallJSON(ctx context.Context, args, kwargs string) (interface{}, error) {
	in, err := f.sig.decode(args, args != "", kwargs, kwargs != "")
	if err != nil {
		return nil, errors.Annotatef(err, "calling %s", f.name)
	}
	out, err := f.dispatch(ctx, in)
	if err != nil || !out.IsValid() {
		return nil, err
	}
	return out.Interface(), nil
}

// Bind stores a function with exactly the type of the wrapped function
// into target, which must be a pointer to a variable of that type.
// Calling the stored function is the same as calling Call.
//
// Errors, including forwarding failures, are returned through the
// trailing error result.  Functions without an error result panic
// with the error instead.
func (f *Func) Bind(target interface{}) {
	pv := reflect.ValueOf(target)
	if pv.Kind() != reflect.Ptr || pv.IsNil() || pv.Elem().Type() != f.sig.Type {
		panic(fmt.Sprintf("%s: Bind needs a non-nil *%s, got %T", f.name, f.sig.Type, target))
	}
	pv.Elem().Set(f.makeFunc())
}

func (f *Func) makeFunc() reflect.Value {
	sig := f.sig
	return reflect.MakeFunc(sig.Type, func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		if sig.TakesContext {
			if c, ok := in[0].Interface().(context.Context); ok && c != nil {
				ctx = c
			}
			in = in[1:]
		}
		result, err := f.dispatch(ctx, in)
		if err != nil && !sig.ReturnsError {
			panic(err)
		}
		out := make([]reflect.Value, 0, 2)
		if sig.Result != nil {
			if !result.IsValid() {
				result = reflect.Zero(sig.Result)
			}
			out = append(out, result)
		}
		if sig.ReturnsError {
			ev := reflect.New(errorType).Elem()
			if err != nil {
				ev.Set(reflect.ValueOf(err))
			}
			out = append(out, ev)
		}
		return out
	})
}

// Path returns the registration entry of the Func.
func (f *Func) Path() Route {
	return Route{
		Pattern: f.route,
		Name:    f.name,
		Method:  f.method,
		Handler: f.View(),
	}
}

// dispatch picks between running in-process and forwarding according
// to the service's mode.
func (f *Func) dispatch(ctx context.Context, in []reflect.Value) (reflect.Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	mode, c, metrics := f.service.current()
	started := time.Now()
	var out reflect.Value
	var err error
	if mode.Forwards() && c != nil {
		logger.Tracef("forwarding %s to %s", f.name, f.route)
		out, err = c.forward(ctx, f, in)
	} else {
		out, err = f.invoke(ctx, in)
	}
	metrics.observe(f.name, mode, started, err)
	return out, err
}

// invoke runs the wrapped function in this process.
func (f *Func) invoke(ctx context.Context, in []reflect.Value) (reflect.Value, error) {
	args := make([]reflect.Value, 0, len(in)+1)
	if f.sig.TakesContext {
		args = append(args, reflect.ValueOf(&ctx).Elem())
	}
	args = append(args, in...)
	out := f.fn.Call(args)

	var result reflect.Value
	var err error
	if f.sig.Result != nil {
		result = out[0]
	}
	if f.sig.ReturnsError {
		if e := out[len(out)-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
	}
	return result, err
}

// View returns the http.HandlerFunc that serves the Func.  Arguments
// come from the "args" and "kwargs" variables: the query string for
// GET, the form body for POST and nowhere for any other method.  Views
// always run the function in this process and write the result as
// {"result": ...}.
func (f *Func) View() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, "fissile.view "+f.name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("fissile.func", f.name)))
		defer span.End()

		requestID := r.Header.Get(RequestIDHeader)
		logger.Debugf("%s %s: %s (request %q)", r.Method, r.URL.Path, f.name, requestID)

		result, err := f.serve(ctx, r)
		if err != nil {
			logger.Debugf("%s (request %q): %v", f.name, requestID, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeError(w, err)
			return
		}
		var v interface{}
		if result.IsValid() {
			v = result.Interface()
		}
		writeJSON(w, http.StatusOK, struct {
			Result interface{} `json:"result"`
		}{v})
	}
}

func (f *Func) serve(ctx context.Context, r *http.Request) (reflect.Value, error) {
	if r.Method != f.method {
		return reflect.Value{}, errors.MethodNotAllowedf("%s on %s", r.Method, f.route)
	}
	args, hasArgs, err := f.requestVar(r, ArgsVar)
	if err != nil {
		return reflect.Value{}, errors.Trace(err)
	}
	kwargs, hasKwargs, err := f.requestVar(r, KwargsVar)
	if err != nil {
		return reflect.Value{}, errors.Trace(err)
	}
	in, err := f.sig.decode(args, hasArgs, kwargs, hasKwargs)
	if err != nil {
		return reflect.Value{}, errors.Trace(err)
	}
	_, _, metrics := f.service.current()
	started := time.Now()
	out, err := f.invoke(ctx, in)
	metrics.observe(f.name, ModeBackend, started, err)
	return out, err
}

// requestVar looks up a request variable.  found is false when the
// variable is absent, which callers treat as "no value".
func (f *Func) requestVar(r *http.Request, name string) (value string, found bool, err error) {
	var vars map[string][]string
	switch f.method {
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			return "", false, errors.NewBadRequest(err, "parsing form")
		}
		vars = r.PostForm
	case http.MethodGet:
		vars = r.URL.Query()
	default:
		return "", false, nil
	}
	vs, found := vars[name]
	if !found || len(vs) == 0 {
		return "", false, nil
	}
	return vs[0], true, nil
}
