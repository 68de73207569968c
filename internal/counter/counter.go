// Package counter holds two integer values behind a read function and a
// write function.  It is the smallest useful thing to split between a
// frontend and a backend.
package counter

import (
	"context"
	"net/http"
	"sync"

	"github.com/FredAtLandMetrics/fissile"
)

// Store is the state read and written by the counter functions.
type Store struct {
	mu         sync.Mutex
	val1, val2 int
}

// NewStore returns a store holding val1 and val2.
func NewStore(val1, val2 int) *Store {
	return &Store{val1: val1, val2: val2}
}

// WriteArgs are the keyword arguments of Write.  Zero values leave the
// stored value unchanged.
type WriteArgs struct {
	fissile.Kwargs
	Pval1 int `json:"pval1"`
	Pval2 int `json:"pval2"`
}

// Read returns both values.
func (s *Store) Read(ctx context.Context) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return []int{s.val1, s.val2}, nil
}

// Write sets the values given in args and returns both values.
func (s *Store) Write(ctx context.Context, args WriteArgs) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if args.Pval1 != 0 {
		s.val1 = args.Pval1
	}
	if args.Pval2 != 0 {
		s.val2 = args.Pval2
	}
	return []int{s.val1, s.val2}, nil
}

// Registrar is implemented by every fissile service flavor.
type Registrar interface {
	Register(route, name, method string, fn interface{}) *fissile.Func
}

// Names of the registered functions.
const (
	ReadName  = "foo-read"
	WriteName = "foo-write"
)

// Funcs are the registered counter functions.  Read and Write have
// the signatures of Store.Read and Store.Write and obey the service's
// execution mode.
type Funcs struct {
	ReadFunc  *fissile.Func
	WriteFunc *fissile.Func

	Read  func(context.Context) ([]int, error)
	Write func(context.Context, WriteArgs) ([]int, error)
}

// Register exposes the store on r as foo-read (GET /foo/read) and
// foo-write (POST /foo/write).
func Register(r Registrar, s *Store) *Funcs {
	fs := &Funcs{
		ReadFunc:  r.Register("/foo/read", ReadName, http.MethodGet, s.Read),
		WriteFunc: r.Register("/foo/write", WriteName, http.MethodPost, s.Write),
	}
	fs.ReadFunc.Bind(&fs.Read)
	fs.WriteFunc.Bind(&fs.Write)
	return fs
}
