package fissile

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("fissile")

// serviceCore is shared by the four service flavors.  It owns the
// registered Funcs, the settings once started and the in-process
// router that the test client uses.
type serviceCore struct {
	name     string
	lock     sync.RWMutex
	funcs    map[string]*Func
	local    *mux.Router
	settings Settings
	started  bool
	client   *client
	metrics  *Collector
}

func newServiceCore(name string) *serviceCore {
	return &serviceCore{
		name:    name,
		funcs:   make(map[string]*Func),
		local:   mux.NewRouter(),
		metrics: NewMetricsCollector(),
	}
}

// current returns what dispatch needs.  Before Start, Funcs run
// in-process.
func (sc *serviceCore) current() (Mode, *client, *Collector) {
	sc.lock.RLock()
	defer sc.lock.RUnlock()
	if !sc.started {
		return ModeNoSplit, nil, sc.metrics
	}
	return sc.settings.ExecMode, sc.client, sc.metrics
}

// register must be called with sc.lock held.  bind, when not nil,
// binds the view to the service's router; the Func is only recorded
// once it returns, so a binder that panics leaves nothing behind.
func (sc *serviceCore) register(route, name, method string, fn interface{}, bind func(*Func)) *Func {
	if sc.funcs[name] != nil {
		panic(fmt.Sprintf("%s: function %q already registered", sc.name, name))
	}
	f := newFunc(sc, route, name, method, fn)
	if bind != nil {
		bind(f)
	}
	sc.funcs[name] = f
	bindMux(sc.local, f)
	return f
}

// start must be called with sc.lock held.
func (sc *serviceCore) start(settings Settings) error {
	if sc.started {
		panic("duplicate call to Start()")
	}
	if err := settings.Validate(); err != nil {
		return errors.Annotatef(err, "starting %s", sc.name)
	}
	if settings.ExecMode == "" {
		settings.ExecMode = ModeNoSplit
	}
	if !settings.ExecMode.Known() {
		logger.Warningf("service %s: unknown exec mode %q, running in-process", sc.name, settings.ExecMode)
	}
	sc.settings = settings
	sc.client = newClient(settings, sc.local)
	sc.started = true
	logger.Infof("service %s started in %s mode with %d functions", sc.name, settings.ExecMode, len(sc.funcs))
	return nil
}

// Lookup finds a registered Func by name.
func (sc *serviceCore) Lookup(name string) (*Func, bool) {
	sc.lock.RLock()
	defer sc.lock.RUnlock()
	f, found := sc.funcs[name]
	return f, found
}

// Routes returns the registration entries of all Funcs, sorted by name.
func (sc *serviceCore) Routes() []Route {
	sc.lock.RLock()
	defer sc.lock.RUnlock()
	routes := make([]Route, 0, len(sc.funcs))
	for _, f := range sc.funcs {
		routes = append(routes, f.Path())
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Name < routes[j].Name })
	return routes
}

// Handler returns a router that serves the views of all registered
// Funcs, independent of how the service itself was bound.
func (sc *serviceCore) Handler() http.Handler {
	return sc.local
}

// Collector returns the metrics collector of the service.  Register it
// with a prometheus.Registerer to export it.
func (sc *serviceCore) Collector() *Collector {
	return sc.metrics
}

// Settings returns the settings the service was started with.
func (sc *serviceCore) Settings() Settings {
	sc.lock.RLock()
	defer sc.lock.RUnlock()
	return sc.settings
}

// EndpointBinder is the signature of the binding function
// used to start a ServiceRegistration, for example
// http.ServeMux.HandleFunc.
type EndpointBinder func(path string, fn func(http.ResponseWriter, *http.Request))

// Service is a started group of Funcs whose views are bound with a
// simple binder like http.ServeMux.HandleFunc.
type Service struct {
	Name string
	*serviceCore
	binder EndpointBinder
}

// ServiceRegistration is a group of Funcs that has not been started.
// Funcs registered with it run in-process and are not bound to any
// router until Start() is called.
type ServiceRegistration struct {
	Name string
	*serviceCore
	running *Service
}

// ServiceWithMux is a started group of Funcs whose views are bound to
// a gorilla mux.Router with their method and name, so routes can be
// reversed with URL.
type ServiceWithMux struct {
	Name string
	*serviceCore
	router *mux.Router
}

// ServiceRegistrationWithMux is the not yet started form of
// ServiceWithMux.
type ServiceRegistrationWithMux struct {
	Name string
	*serviceCore
	running *ServiceWithMux
}

// PreRegisterService creates a service that must be Start()ed later.
//
// Funcs can be registered next to their implementation, in init()
// functions, and bound when the program decides how it is deployed.
func PreRegisterService(name string) *ServiceRegistration {
	return &ServiceRegistration{
		Name:        name,
		serviceCore: newServiceCore(name),
	}
}

// RegisterService creates a service and starts it immediately.
func RegisterService(name string, settings Settings, binder EndpointBinder) (*Service, error) {
	return PreRegisterService(name).Start(settings, binder)
}

// PreRegisterServiceWithMux creates a service that must be Start()ed
// later with a mux.Router.
func PreRegisterServiceWithMux(name string) *ServiceRegistrationWithMux {
	return &ServiceRegistrationWithMux{
		Name:        name,
		serviceCore: newServiceCore(name),
	}
}

// RegisterServiceWithMux creates a service and starts it immediately.
func RegisterServiceWithMux(name string, settings Settings, router *mux.Router) (*ServiceWithMux, error) {
	return PreRegisterServiceWithMux(name).Start(settings, router)
}

// Register adds a function to the service.  route is the path of its
// view, name identifies it and method is the HTTP method of the view
// (POST when empty).  fn must be a function; see Kwargs for how
// parameters and results are mapped.
//
// Bad registrations (duplicate name, unusable function) panic.  If the
// service has already been started, the view is bound immediately.
func (s *ServiceRegistration) Register(route, name, method string, fn interface{}) *Func {
	s.lock.Lock()
	defer s.lock.Unlock()
	var bind func(*Func)
	if s.running != nil {
		bind = s.running.bind
	}
	return s.register(route, name, method, fn, bind)
}

// Start binds all registered views with binder and switches the Funcs
// to the mode in settings.  Start() may only be called once.
func (s *ServiceRegistration) Start(settings Settings, binder EndpointBinder) (*Service, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.start(settings); err != nil {
		return nil, errors.Trace(err)
	}
	for _, f := range s.funcs {
		binder(f.route, f.View())
	}
	svc := &Service{
		Name:        s.Name,
		serviceCore: s.serviceCore,
		binder:      binder,
	}
	s.running = svc
	return svc, nil
}

// Register adds a function to the running service and binds its view
// immediately.
func (s *Service) Register(route, name, method string, fn interface{}) *Func {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.register(route, name, method, fn, s.bind)
}

func (s *Service) bind(f *Func) {
	s.binder(f.route, f.View())
}

// Register adds a function to the service.  See
// ServiceRegistration.Register.
func (s *ServiceRegistrationWithMux) Register(route, name, method string, fn interface{}) *Func {
	s.lock.Lock()
	defer s.lock.Unlock()
	var bind func(*Func)
	if s.running != nil {
		bind = s.running.bind
	}
	return s.register(route, name, method, fn, bind)
}

// Start binds all registered views to router and switches the Funcs to
// the mode in settings.  Start() should be called at most once.
func (s *ServiceRegistrationWithMux) Start(settings Settings, router *mux.Router) (*ServiceWithMux, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.start(settings); err != nil {
		return nil, errors.Trace(err)
	}
	for _, f := range s.funcs {
		bindMux(router, f)
	}
	svc := &ServiceWithMux{
		Name:        s.Name,
		serviceCore: s.serviceCore,
		router:      router,
	}
	s.running = svc
	return svc, nil
}

// Register adds a function to the running service and binds its view
// immediately.
func (s *ServiceWithMux) Register(route, name, method string, fn interface{}) *Func {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.register(route, name, method, fn, s.bind)
}

func (s *ServiceWithMux) bind(f *Func) {
	bindMux(s.router, f)
}

// URL reverses the route of the named Func on the router the service
// was started with.
func (s *ServiceWithMux) URL(name string) (*url.URL, error) {
	route := s.router.Get(name)
	if route == nil {
		return nil, errors.NotFoundf("route %q", name)
	}
	u, err := route.URL()
	return u, errors.Trace(err)
}

func bindMux(router *mux.Router, f *Func) *mux.Route {
	return router.HandleFunc(f.route, f.View()).Methods(f.method).Name(f.name)
}
