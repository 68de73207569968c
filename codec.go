package fissile

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"strings"

	"github.com/juju/errors"
	"github.com/mitchellh/mapstructure"
)

// Request variable names.  Positional arguments travel as a JSON array
// in "args", keyword arguments as a JSON object in "kwargs".
const (
	ArgsVar   = "args"
	KwargsVar = "kwargs"
)

// values converts caller-supplied arguments to the parameter types of
// the signature.  Missing trailing arguments become zero values.  When
// the signature has a kwargs struct, it may be passed as the final
// argument.
func (s *signature) values(args []interface{}) ([]reflect.Value, error) {
	if len(args) > s.numIn() {
		return nil, errors.BadRequestf("takes %d arguments but %d were given", s.numIn(), len(args))
	}
	in := s.zeroValues()
	for i, a := range args {
		want := s.paramType(i)
		if a == nil {
			continue
		}
		v, ok := convertArg(reflect.ValueOf(a), want)
		if !ok {
			return nil, errors.BadRequestf("argument %d: cannot use %v (%T) as %s", i, a, a, want)
		}
		in[i] = v
	}
	return in, nil
}

// convertArg converts v to want when no meaning is lost: named types
// over the same kind, integers that fit and numbers to floats.  An int
// never becomes a string and a float never becomes an int.
func convertArg(v reflect.Value, want reflect.Type) (reflect.Value, bool) {
	switch {
	case v.Type().AssignableTo(want):
		return v, true
	case v.Kind() == want.Kind() && v.Kind() != reflect.Ptr && v.Type().ConvertibleTo(want):
		return v.Convert(want), true
	}
	switch {
	case isInt(v.Kind()) && isInt(want.Kind()):
		n := v.Int()
		if reflect.Zero(want).OverflowInt(n) {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(n).Convert(want), true
	case isUint(v.Kind()) && isUint(want.Kind()):
		n := v.Uint()
		if reflect.Zero(want).OverflowUint(n) {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(n).Convert(want), true
	case isInt(v.Kind()) && isUint(want.Kind()):
		n := v.Int()
		if n < 0 || reflect.Zero(want).OverflowUint(uint64(n)) {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(uint64(n)).Convert(want), true
	case isUint(v.Kind()) && isInt(want.Kind()):
		n := v.Uint()
		if n > math.MaxInt64 || reflect.Zero(want).OverflowInt(int64(n)) {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(int64(n)).Convert(want), true
	case (isInt(v.Kind()) || isUint(v.Kind()) || isFloat(v.Kind())) && isFloat(want.Kind()):
		return v.Convert(want), true
	}
	return reflect.Value{}, false
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func (s *signature) paramType(i int) reflect.Type {
	if i < len(s.Positional) {
		return s.Positional[i]
	}
	return s.Kwargs
}

func (s *signature) zeroValues() []reflect.Value {
	in := make([]reflect.Value, s.numIn())
	for i := range in {
		in[i] = reflect.Zero(s.paramType(i))
	}
	return in
}

// decode fills the parameters from the raw request variables.  A
// variable that was not present leaves the parameters at their zero
// values.
func (s *signature) decode(rawArgs string, hasArgs bool, rawKwargs string, hasKwargs bool) ([]reflect.Value, error) {
	in := s.zeroValues()
	if hasArgs && !isNullJSON(rawArgs) {
		var raws []json.RawMessage
		if err := json.Unmarshal([]byte(rawArgs), &raws); err != nil {
			return nil, errors.NewBadRequest(err, "args must be a JSON array")
		}
		if len(raws) > len(s.Positional) {
			return nil, errors.BadRequestf("takes %d positional arguments but %d were given", len(s.Positional), len(raws))
		}
		for i, raw := range raws {
			p := reflect.New(s.Positional[i])
			if err := json.Unmarshal(raw, p.Interface()); err != nil {
				return nil, errors.NewBadRequest(err, "argument "+s.Positional[i].String())
			}
			in[i] = p.Elem()
		}
	}
	if hasKwargs && !isNullJSON(rawKwargs) {
		if s.Kwargs == nil {
			if strings.TrimSpace(rawKwargs) == "{}" {
				return in, nil
			}
			return nil, errors.BadRequestf("takes no keyword arguments")
		}
		kw, err := decodeKwargs(s.Kwargs, rawKwargs)
		if err != nil {
			return nil, errors.Trace(err)
		}
		in[len(in)-1] = kw
	}
	return in, nil
}

// decodeKwargs decodes the kwargs object into a value of type t.  Plain
// JSON decoding is tried first so that kwargs survive the round trip
// through encode unchanged.  Values of the wrong JSON type ("7" for an
// int) are then converted by mapstructure.
func decodeKwargs(t reflect.Type, raw string) (reflect.Value, error) {
	p := reflect.New(t)
	strict := json.NewDecoder(strings.NewReader(raw))
	strict.DisallowUnknownFields()
	if err := strict.Decode(p.Interface()); err == nil {
		return p.Elem(), nil
	}

	d := json.NewDecoder(strings.NewReader(raw))
	d.UseNumber()
	var m map[string]interface{}
	if err := d.Decode(&m); err != nil {
		return reflect.Value{}, errors.NewBadRequest(err, "kwargs must be a JSON object")
	}
	p = reflect.New(t)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		Result:           p.Interface(),
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return reflect.Value{}, errors.Trace(err)
	}
	if err := dec.Decode(m); err != nil {
		return reflect.Value{}, errors.NewBadRequest(err, "kwargs")
	}
	return p.Elem(), nil
}

// encode is the inverse of decode: it produces the request variables
// a frontend sends to the backend.  kwargs is empty when the signature
// has no keyword arguments.
func (s *signature) encode(in []reflect.Value) (args string, kwargs string, err error) {
	positional := make([]interface{}, len(s.Positional))
	for i := range s.Positional {
		positional[i] = in[i].Interface()
	}
	a, err := json.Marshal(positional)
	if err != nil {
		return "", "", errors.Annotate(err, "encoding args")
	}
	if s.Kwargs == nil {
		return string(a), "", nil
	}
	kw, err := json.Marshal(in[len(in)-1].Interface())
	if err != nil {
		return "", "", errors.Annotate(err, "encoding kwargs")
	}
	return string(a), string(kw), nil
}

// decodeResult converts the "result" member of a response into a value
// of the signature's result type.
func (s *signature) decodeResult(raw json.RawMessage) (reflect.Value, error) {
	if s.Result == nil {
		return reflect.Value{}, nil
	}
	p := reflect.New(s.Result)
	if len(raw) == 0 || isNullJSON(string(raw)) {
		return p.Elem(), nil
	}
	if err := json.Unmarshal(raw, p.Interface()); err != nil {
		return reflect.Value{}, errors.Annotatef(err, "decoding result as %s", s.Result)
	}
	return p.Elem(), nil
}

func isNullJSON(s string) bool {
	t := bytes.TrimSpace([]byte(s))
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
