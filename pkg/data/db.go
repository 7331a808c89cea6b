package data

import (
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mchmarny/wilson/pkg/udf"
	"modernc.org/sqlite"
)

const (
	DataFileName string = "data.db"
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")

	boundMu sync.Mutex
	bound   = map[string]bool{}

	registry atomic.Pointer[udf.Registry]
)

// Init creates the database schema at dbFilePath. It is safe to call on an
// existing database.
func Init(dbFilePath string) error {
	if dbFilePath == "" {
		return errors.New("dbFilePath not specified")
	}

	db, err := GetDB(dbFilePath)
	if err != nil {
		return fmt.Errorf("error opening database: %s: %w", dbFilePath, err)
	}
	defer db.Close()

	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return fmt.Errorf("failed to read the schema creation file: %w", err)
	}
	if _, err := db.Exec(string(b)); err != nil {
		return fmt.Errorf("failed to create database schema in: %s: %w", dbFilePath, err)
	}
	slog.Debug("db schema ready", "path", dbFilePath)

	return nil
}

// GetDB opens the SQLite database at path with the functions of Registry
// bound, so queries can call wilson_score_interval.
func GetDB(path string) (*sql.DB, error) {
	if err := RegisterFunctions(Registry()); err != nil {
		return nil, fmt.Errorf("failed to register functions: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %s: %w", path, err)
	}
	return conn, nil
}

// SetRegistry makes reg the registry that SQL calls resolve against, on open
// and already open connections alike, and binds any of its functions the
// driver does not know yet.
func SetRegistry(reg *udf.Registry) error {
	if err := RegisterFunctions(reg); err != nil {
		return err
	}
	registry.Store(reg)
	slog.Debug("function registry set", "functions", reg.Names())
	return nil
}

// Registry returns the registry set with SetRegistry, or udf.Default.
func Registry() *udf.Registry {
	if r := registry.Load(); r != nil {
		return r
	}
	return udf.Default()
}

// RegisterFunctions binds every function of reg into the SQLite driver.
// Driver bindings are process wide: a name that is already bound is skipped.
// Calls resolve the name through Registry first, falling back to the
// function it was bound with.
func RegisterFunctions(reg *udf.Registry) error {
	if reg == nil {
		return errors.New("registry required")
	}

	boundMu.Lock()
	defer boundMu.Unlock()

	for _, fn := range reg.Functions() {
		if bound[fn.Name] {
			continue
		}

		register := sqlite.RegisterScalarFunction
		if fn.Deterministic {
			register = sqlite.RegisterDeterministicScalarFunction
		}
		if err := register(fn.Name, int32(fn.NumArgs), sqliteFunc(fn)); err != nil {
			return fmt.Errorf("failed to register function %s: %w", fn.Name, err)
		}
		bound[fn.Name] = true
		slog.Debug("function bound", "name", fn.Name, "args", fn.NumArgs)
	}
	return nil
}

func sqliteFunc(fn *udf.Function) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		in := make([]any, len(args))
		for i, a := range args {
			in[i] = a
		}
		call := fn.Fn
		if cur, ok := Registry().Lookup(fn.Name); ok && cur.NumArgs == fn.NumArgs {
			call = cur.Fn
		}
		v, err := call(in...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn.Name, err)
		}
		return v, nil
	}
}
