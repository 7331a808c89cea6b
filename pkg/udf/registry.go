// Package udf is a registry of named scalar functions. Entries are callable
// directly, over frame columns, and are bound into the SQL engines by the
// data package.
package udf

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/mchmarny/wilson/pkg/frame"
	"github.com/mchmarny/wilson/pkg/score"
)

var nameRegEx = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ScalarFunc evaluates one row.
type ScalarFunc func(args ...any) (any, error)

// Function is a registry entry.
type Function struct {
	Name          string
	NumArgs       int
	Deterministic bool
	Fn            ScalarFunc
}

// Registry holds functions by name. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]*Function
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]*Function)}
}

// Register adds fn. Names must be SQL identifiers and unique.
func (r *Registry) Register(fn Function) error {
	if !nameRegEx.MatchString(fn.Name) {
		return fmt.Errorf("%w: invalid function name: %q", score.ErrInvalidArgument, fn.Name)
	}
	if fn.Fn == nil {
		return fmt.Errorf("%w: function %s has no implementation", score.ErrInvalidArgument, fn.Name)
	}
	if fn.NumArgs < 0 {
		return fmt.Errorf("%w: function %s has negative arity", score.ErrInvalidArgument, fn.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.funcs[fn.Name]; ok {
		return fmt.Errorf("%w: function already registered: %s", score.ErrInvalidArgument, fn.Name)
	}
	f := fn
	r.funcs[fn.Name] = &f
	return nil
}

// Lookup returns the named function.
func (r *Registry) Lookup(name string) (*Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.funcs[name]
	return f, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		list = append(list, n)
	}
	sort.Strings(list)
	return list
}

// Functions returns the registered functions sorted by name.
func (r *Registry) Functions() []*Function {
	names := r.Names()
	list := make([]*Function, 0, len(names))
	for _, n := range names {
		if f, ok := r.Lookup(n); ok {
			list = append(list, f)
		}
	}
	return list
}

// Call invokes the named function with args.
func (r *Registry) Call(name string, args ...any) (any, error) {
	f, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: undefined function: %s", score.ErrInvalidArgument, name)
	}
	if len(args) != f.NumArgs {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d",
			score.ErrInvalidArgument, name, f.NumArgs, len(args))
	}
	return f.Fn(args...)
}

// Apply evaluates the named function over the given columns of f and returns
// a copy of f with the result as column output.
func (r *Registry) Apply(f *frame.Frame, output, name string, columns ...string) (*frame.Frame, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: frame required", score.ErrInvalidArgument)
	}

	cols := make([][]any, len(columns))
	for i, c := range columns {
		v, err := f.Column(c)
		if err != nil {
			return nil, err
		}
		cols[i] = v
	}

	out := make([]any, f.Len())
	args := make([]any, len(columns))
	for row := range out {
		for i := range cols {
			args[i] = cols[i][row]
		}
		v, err := r.Call(name, args...)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		out[row] = v
	}

	return f.WithColumn(output, out)
}
