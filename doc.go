/*
Package fissile exposes Go functions both as plain callables and as web
endpoints, and lets a deployment decide where the calls execute.

Why?

Split deployments: the same code base can run as a single process
("nosplit"), as a backend that executes functions and serves their
views, or as a frontend that forwards every call to a backend over
HTTP.  Callers do not change: they call the function.

Code juxtaposition: a function is registered next to its
implementation, usually in an init() function, with its route, name
and HTTP method.  Binding to a router and choosing the execution mode
happens later, when the service is started.

Type checking at registration time: the signature of a registered
function is checked when it is registered.  Unusable signatures panic
immediately rather than failing on the first request.

Basics

Create a service, register functions with it, and start it:

	var svc = fissile.PreRegisterServiceWithMux("counter")

	var read = svc.Register("/foo/read", "foo-read", "GET", store.Read)

	func main() {
		settings, err := fissile.LoadSettings()
		...
		router := mux.NewRouter()
		svc.Start(settings, router)
		http.ListenAndServe(settings.ListenAddr, router)
	}

read.Call(ctx) then runs store.Read in this process or forwards it to
FISSILE_BACKEND_URL, depending on FISSILE_EXEC_MODE.  Bind produces a
function value of the implementation's own type for callers that want
to call it directly.

Functions

A registered function may take a context.Context as its first
parameter.  The remaining parameters are positional arguments; each
must be decodable from JSON.  A trailing struct that embeds Kwargs
holds the keyword arguments.  Results may be (), (R), (error) or
(R, error).

Views

A view reads two request variables: "args", a JSON array of
positional arguments, and "kwargs", a JSON object of keyword
arguments.  GET views read them from the query string and POST views
from the form body.  Missing variables leave the parameters at their
zero values.  The response is {"result": ...} or, on failure,
{"error": {"kind": ..., "message": ...}} with a matching status code.

Views always execute the function in-process.  That is what a backend
serves and what the frontend's forwarding client talks to.

Modes

With FISSILE_EXEC_MODE=frontend calls are forwarded.  Any other mode
runs them in-process.  FISSILE_USE_TEST_CLIENT makes a frontend
forward through the service's own views without leaving the process,
which is how tests check that both modes give the same answer.

*/
package fissile
