package fissile

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Kwargs marks a struct as the keyword argument set of a function.
// Embed it in a struct and make that struct the last parameter of
// the function:
//
//	type WriteArgs struct {
//		fissile.Kwargs
//		Pval1 int `json:"pval1"`
//		Pval2 int `json:"pval2"`
//	}
//
//	func write(ctx context.Context, args WriteArgs) ([]int, error)
//
// The view fills the struct from the request's "kwargs" variable.
// Field names follow the json tags.
type Kwargs struct{}

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errorType = reflect.TypeOf((*error)(nil)).Elem()
var kwargsType = reflect.TypeOf(Kwargs{})

// signature is the characterization of a function that can be
// wrapped by a Func.
type signature struct {
	Type         reflect.Type
	TakesContext bool
	Positional   []reflect.Type
	Kwargs       reflect.Type // nil when there is no keyword argument struct
	Result       reflect.Type // nil when only an error (or nothing) is returned
	ReturnsError bool
}

// numIn is the number of values (positional plus kwargs) that
// flow through dispatch.  The context is not counted.
func (s *signature) numIn() int {
	if s.Kwargs != nil {
		return len(s.Positional) + 1
	}
	return len(s.Positional)
}

func (s *signature) describe() string {
	var in []string
	if s.TakesContext {
		in = append(in, "ctx")
	}
	for _, t := range s.Positional {
		in = append(in, t.String())
	}
	if s.Kwargs != nil {
		in = append(in, "kwargs "+s.Kwargs.String())
	}
	var out []string
	if s.Result != nil {
		out = append(out, s.Result.String())
	}
	if s.ReturnsError {
		out = append(out, "error")
	}
	return fmt.Sprintf("takes [%s] returns [%s]", strings.Join(in, ", "), strings.Join(out, ", "))
}

// characterize checks that t can be wrapped.  mismatch is empty if it can,
// otherwise it explains why not.
func characterize(t reflect.Type) (sig *signature, mismatch string) {
	if t == nil || t.Kind() != reflect.Func {
		return nil, "not func"
	}
	if t.IsVariadic() {
		return nil, "variadic functions are not supported"
	}
	sig = &signature{Type: t}

	first, last := 0, t.NumIn()
	if last > 0 && t.In(0) == contextType {
		sig.TakesContext = true
		first = 1
	}
	if last > first && isKwargsStruct(t.In(last-1)) {
		sig.Kwargs = t.In(last - 1)
		last--
	}
	for i := first; i < last; i++ {
		in := t.In(i)
		if in == contextType {
			return nil, fmt.Sprintf("input %d: context.Context must be the first parameter", i)
		}
		if isKwargsStruct(in) {
			return nil, fmt.Sprintf("input %d: keyword arguments must be the last parameter", i)
		}
		if reason := unencodable(in); reason != "" {
			return nil, fmt.Sprintf("input %d (%s): %s", i, in, reason)
		}
		sig.Positional = append(sig.Positional, in)
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			sig.ReturnsError = true
		} else {
			sig.Result = t.Out(0)
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, "outputs: second return value must be error"
		}
		if t.Out(0) == errorType {
			return nil, "outputs: only one error may be returned"
		}
		sig.Result = t.Out(0)
		sig.ReturnsError = true
	default:
		return nil, "outputs: at most a result and an error may be returned"
	}
	if sig.Result != nil {
		if reason := unencodable(sig.Result); reason != "" {
			return nil, fmt.Sprintf("output (%s): %s", sig.Result, reason)
		}
	}
	return sig, ""
}

func isKwargsStruct(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type == kwargsType {
			return true
		}
	}
	return false
}

// unencodable returns why values of type t cannot travel as JSON,
// or an empty string if they can.
func unencodable(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return "cannot be encoded as JSON"
	case reflect.Interface:
		if t.NumMethod() > 0 {
			return "only the empty interface can be decoded from JSON"
		}
	case reflect.Ptr, reflect.Slice, reflect.Array:
		return unencodable(t.Elem())
	case reflect.Map:
		if r := unencodable(t.Key()); r != "" {
			return r
		}
		return unencodable(t.Elem())
	}
	return ""
}
