package fissile

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ctxT = true
const ctxF = false
const errT = true
const errF = false

type intType1 int
type stringA string

type kwargsA struct {
	Kwargs
	Pval1 int    `json:"pval1"`
	Name  string `json:"name,omitempty"`
}

type notKwargs struct {
	Pval1 int
}

type interfaceI interface {
	I() int
}

var characterizeTests = []struct {
	name               string
	fn                 interface{}
	expectedMismatch   string // substring; empty when expected to match
	expectedContext    bool
	expectedPositional []reflect.Type
	expectedKwargs     reflect.Type
	expectedResult     reflect.Type
	expectedError      bool
}{
	{
		"no inputs no outputs",
		func() {},
		"",
		ctxF, nil, nil, nil, errF,
	},
	{
		"context only",
		func(context.Context) error { return nil },
		"",
		ctxT, nil, nil, nil, errT,
	},
	{
		"positional with result and error",
		func(ctx context.Context, a int, b stringA) ([]int, error) { return nil, nil },
		"",
		ctxT, []reflect.Type{reflect.TypeOf(0), reflect.TypeOf(stringA(""))}, nil, reflect.TypeOf([]int{}), errT,
	},
	{
		"result only",
		func(a intType1) map[string]int { return nil },
		"",
		ctxF, []reflect.Type{reflect.TypeOf(intType1(0))}, nil, reflect.TypeOf(map[string]int{}), errF,
	},
	{
		"kwargs",
		func(ctx context.Context, a int, kw kwargsA) error { return nil },
		"",
		ctxT, []reflect.Type{reflect.TypeOf(0)}, reflect.TypeOf(kwargsA{}), nil, errT,
	},
	{
		"plain struct is positional",
		func(n notKwargs) {},
		"",
		ctxF, []reflect.Type{reflect.TypeOf(notKwargs{})}, nil, nil, errF,
	},
	{
		"empty interface",
		func(v interface{}) interface{} { return v },
		"",
		ctxF, []reflect.Type{reflect.TypeOf((*interface{})(nil)).Elem()}, nil, reflect.TypeOf((*interface{})(nil)).Elem(), errF,
	},
	{
		"not a func",
		7,
		"not func",
		ctxF, nil, nil, nil, errF,
	},
	{
		"variadic",
		func(a ...int) {},
		"variadic",
		ctxF, nil, nil, nil, errF,
	},
	{
		"context not first",
		func(a int, ctx context.Context) {},
		"must be the first parameter",
		ctxF, nil, nil, nil, errF,
	},
	{
		"kwargs not last",
		func(kw kwargsA, a int) {},
		"must be the last parameter",
		ctxF, nil, nil, nil, errF,
	},
	{
		"func parameter",
		func(f func()) {},
		"cannot be encoded as JSON",
		ctxF, nil, nil, nil, errF,
	},
	{
		"channel inside slice",
		func(c []chan int) {},
		"cannot be encoded as JSON",
		ctxF, nil, nil, nil, errF,
	},
	{
		"interface with methods",
		func(i interfaceI) {},
		"only the empty interface",
		ctxF, nil, nil, nil, errF,
	},
	{
		"second result not error",
		func() (int, int) { return 0, 0 },
		"second return value must be error",
		ctxF, nil, nil, nil, errF,
	},
	{
		"two errors",
		func() (error, error) { return nil, nil },
		"only one error",
		ctxF, nil, nil, nil, errF,
	},
	{
		"three results",
		func() (int, string, error) { return 0, "", nil },
		"at most a result and an error",
		ctxF, nil, nil, nil, errF,
	},
	{
		"unencodable result",
		func() (chan int, error) { return nil, nil },
		"output",
		ctxF, nil, nil, nil, errF,
	},
}

func TestCharacterize(t *testing.T) {
	for _, test := range characterizeTests {
		sig, mismatch := characterize(reflect.TypeOf(test.fn))
		if test.expectedMismatch != "" {
			assert.Contains(t, mismatch, test.expectedMismatch, test.name)
			assert.Nil(t, sig, test.name)
			continue
		}
		if !assert.Equal(t, "", mismatch, test.name) {
			continue
		}
		assert.Equal(t, test.expectedContext, sig.TakesContext, test.name+" context")
		assert.Equal(t, test.expectedPositional, sig.Positional, test.name+" positional")
		assert.Equal(t, test.expectedKwargs, sig.Kwargs, test.name+" kwargs")
		assert.Equal(t, test.expectedResult, sig.Result, test.name+" result")
		assert.Equal(t, test.expectedError, sig.ReturnsError, test.name+" error")
	}
}

func TestGetSignatureRemembers(t *testing.T) {
	t.Parallel()
	ft := reflect.TypeOf(func(a intType1, b stringA) (int, error) { return 0, nil })
	s1, m1 := getSignature(ft)
	s2, m2 := getSignature(ft)
	assert.Equal(t, "", m1)
	assert.Equal(t, "", m2)
	assert.True(t, s1 == s2, "same *signature")

	bad := reflect.TypeOf(func(a ...stringA) {})
	_, m1 = getSignature(bad)
	_, m2 = getSignature(bad)
	assert.Contains(t, m1, "variadic")
	assert.Equal(t, m1, m2)
}

func TestSignatureDescribe(t *testing.T) {
	sig, _ := characterize(reflect.TypeOf(func(ctx context.Context, a int, kw kwargsA) ([]int, error) { return nil, nil }))
	assert.Equal(t, "takes [ctx, int, kwargs fissile.kwargsA] returns [[]int, error]", sig.describe())
}

func TestDecode(t *testing.T) {
	sig, mismatch := characterize(reflect.TypeOf(func(a int, b string, kw kwargsA) error { return nil }))
	require.Equal(t, "", mismatch)

	in, err := sig.decode(`[3, "x"]`, true, `{"pval1": "7", "name": "n"}`, true)
	require.NoError(t, err)
	assert.Equal(t, 3, in[0].Interface())
	assert.Equal(t, "x", in[1].Interface())
	assert.Equal(t, kwargsA{Pval1: 7, Name: "n"}, in[2].Interface())

	in, err = sig.decode("", false, "", false)
	require.NoError(t, err)
	assert.Equal(t, 0, in[0].Interface())
	assert.Equal(t, "", in[1].Interface())
	assert.Equal(t, kwargsA{}, in[2].Interface())

	in, err = sig.decode(`[5]`, true, `null`, true)
	require.NoError(t, err)
	assert.Equal(t, 5, in[0].Interface())
	assert.Equal(t, "", in[1].Interface())

	_, err = sig.decode(`[1, "a", 2]`, true, "", false)
	assert.True(t, errors.Is(err, errors.BadRequest), "too many args: %v", err)

	_, err = sig.decode(`{"a": 1}`, true, "", false)
	assert.True(t, errors.Is(err, errors.BadRequest), "args not an array: %v", err)

	_, err = sig.decode(`["a"]`, true, "", false)
	assert.True(t, errors.Is(err, errors.BadRequest), "wrong arg type: %v", err)

	_, err = sig.decode("", false, `{"unknown": 1}`, true)
	assert.True(t, errors.Is(err, errors.BadRequest), "unknown kwarg: %v", err)

	_, err = sig.decode("", false, `[1]`, true)
	assert.True(t, errors.Is(err, errors.BadRequest), "kwargs not an object: %v", err)
}

func TestDecodeWithoutKwargs(t *testing.T) {
	sig, _ := characterize(reflect.TypeOf(func(a int) {}))
	_, err := sig.decode("", false, `{}`, true)
	assert.NoError(t, err)
	_, err = sig.decode("", false, `{"a": 1}`, true)
	assert.True(t, errors.Is(err, errors.BadRequest), "%v", err)
}

func TestEncodeDecodeAgree(t *testing.T) {
	sig, _ := characterize(reflect.TypeOf(func(a []int, b map[string]string, kw kwargsA) {}))
	in := []reflect.Value{
		reflect.ValueOf([]int{1, 2}),
		reflect.ValueOf(map[string]string{"k": "v"}),
		reflect.ValueOf(kwargsA{Pval1: 9}),
	}
	args, kwargs, err := sig.encode(in)
	require.NoError(t, err)
	assert.Equal(t, `[[1,2],{"k":"v"}]`, args)
	assert.Equal(t, `{"pval1":9}`, kwargs)

	out, err := sig.decode(args, true, kwargs, true)
	require.NoError(t, err)
	for i := range in {
		assert.Equal(t, in[i].Interface(), out[i].Interface())
	}
}

func TestValues(t *testing.T) {
	sig, _ := characterize(reflect.TypeOf(func(a intType1, b string, kw kwargsA) {}))

	in, err := sig.values([]interface{}{5})
	require.NoError(t, err)
	assert.Equal(t, intType1(5), in[0].Interface(), "int converts to intType1")
	assert.Equal(t, "", in[1].Interface())
	assert.Equal(t, kwargsA{}, in[2].Interface())

	in, err = sig.values([]interface{}{nil, "s", kwargsA{Pval1: 1}})
	require.NoError(t, err)
	assert.Equal(t, intType1(0), in[0].Interface())
	assert.Equal(t, kwargsA{Pval1: 1}, in[2].Interface())

	_, err = sig.values([]interface{}{1, "s", kwargsA{}, 4})
	assert.True(t, errors.Is(err, errors.BadRequest), "%v", err)

	_, err = sig.values([]interface{}{[]int{1}})
	assert.True(t, errors.Is(err, errors.BadRequest), "%v", err)
}

type intSlice []int

var convertArgTests = []struct {
	name string
	arg  interface{}
	want reflect.Type
	ok   bool
	out  interface{}
}{
	{"assignable", "s", reflect.TypeOf(""), true, "s"},
	{"named over same kind", "s", reflect.TypeOf(stringA("")), true, stringA("s")},
	{"named slice", []int{1}, reflect.TypeOf(intSlice{}), true, intSlice{1}},
	{"int widens", 7, reflect.TypeOf(int64(0)), true, int64(7)},
	{"int narrows when it fits", 7, reflect.TypeOf(int8(0)), true, int8(7)},
	{"int overflows", 300, reflect.TypeOf(int8(0)), false, nil},
	{"int to uint", 7, reflect.TypeOf(uint(0)), true, uint(7)},
	{"negative to uint", -1, reflect.TypeOf(uint(0)), false, nil},
	{"int to float", 2, reflect.TypeOf(float64(0)), true, float64(2)},
	{"float to int", 1.9, reflect.TypeOf(0), false, nil},
	{"int to string", 65, reflect.TypeOf(""), false, nil},
	{"string to int", "65", reflect.TypeOf(0), false, nil},
	{"slice to array pointer", []int{1}, reflect.TypeOf(&[4]int{}), false, nil},
}

func TestConvertArg(t *testing.T) {
	for _, c := range convertArgTests {
		v, ok := convertArg(reflect.ValueOf(c.arg), c.want)
		if !assert.Equal(t, c.ok, ok, c.name) || !ok {
			continue
		}
		assert.Equal(t, c.out, v.Interface(), c.name)
	}
}

func TestDecodeResult(t *testing.T) {
	sig, _ := characterize(reflect.TypeOf(func() ([]int, error) { return nil, nil }))
	v, err := sig.decodeResult([]byte(`[1,2]`))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, v.Interface())

	v, err = sig.decodeResult([]byte(`null`))
	require.NoError(t, err)
	assert.Equal(t, []int(nil), v.Interface())

	_, err = sig.decodeResult([]byte(`"x"`))
	assert.Error(t, err)

	noResult, _ := characterize(reflect.TypeOf(func() error { return nil }))
	v, err = noResult.decodeResult([]byte(`null`))
	assert.NoError(t, err)
	assert.False(t, v.IsValid())
}

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		err    error
		kind   string
		status int
	}{
		{errors.NotFoundf("thing"), "not-found", http.StatusNotFound},
		{errors.NotValidf("thing"), "not-valid", http.StatusBadRequest},
		{errors.BadRequestf("thing"), "bad-request", http.StatusBadRequest},
		{errors.Unauthorizedf("thing"), "unauthorized", http.StatusUnauthorized},
		{errors.Forbiddenf("thing"), "forbidden", http.StatusForbidden},
		{errors.MethodNotAllowedf("thing"), "method-not-allowed", http.StatusMethodNotAllowed},
		{errors.AlreadyExistsf("thing"), "already-exists", http.StatusConflict},
		{errors.NotImplementedf("thing"), "not-implemented", http.StatusNotImplemented},
		{errors.Timeoutf("thing"), "timeout", http.StatusGatewayTimeout},
		{errors.Annotate(errors.NotFoundf("thing"), "wrapped"), "not-found", http.StatusNotFound},
		{errors.New("plain"), internalKind, http.StatusInternalServerError},
	}
	for _, c := range cases {
		kind, status := kindOf(c.err)
		assert.Equal(t, c.kind, kind, c.err.Error())
		assert.Equal(t, c.status, status, c.err.Error())
		assert.Equal(t, c.status, StatusCode(c.err))

		if kind == internalKind {
			continue
		}
		back := (&wireError{Kind: kind, Message: c.err.Error()}).toError("f", status)
		again, _ := kindOf(back)
		assert.Equal(t, kind, again, "round trip of "+kind)
		assert.True(t, strings.Contains(back.Error(), "calling f"), back.Error())
	}

	var remote *RemoteError
	err := (&wireError{Kind: internalKind, Message: "boom"}).toError("f", 500)
	assert.True(t, errors.As(err, &remote))
	assert.Equal(t, 500, remote.Status)

	err = statusError("f", http.StatusNotFound, "404 page not found")
	assert.True(t, errors.Is(err, errors.NotFound))
	err = statusError("f", http.StatusTeapot, "short and stout")
	assert.True(t, errors.As(err, &remote))
}

func TestRetryable(t *testing.T) {
	plain := []byte("upstream unavailable\n")
	assert.True(t, retryable(http.StatusServiceUnavailable, plain))
	assert.True(t, retryable(http.StatusBadGateway, plain))
	assert.True(t, retryable(http.StatusGatewayTimeout, nil))
	assert.False(t, retryable(http.StatusInternalServerError, plain))
	assert.False(t, retryable(http.StatusOK, plain))

	// The function ran and reported a timeout itself.
	written := []byte(`{"error": {"kind": "timeout", "message": "db lock timeout"}}`)
	assert.False(t, retryable(http.StatusGatewayTimeout, written))
	assert.False(t, retryable(http.StatusServiceUnavailable, []byte(`{"error": {"kind": "internal", "message": "x"}}`)))
}
