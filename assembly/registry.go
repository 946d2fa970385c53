package assembly

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"pipelined.dev/bci/log"
	"pipelined.dev/bci/pipe"
)

// Kind is the expected kind of factory argument.
type Kind int

// Argument kinds. Numbers are converted between kinds when no
// information is lost.
const (
	Any Kind = iota
	Int
	Uint
	Float
	String
	Strings
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Uint:
		return "uint"
	case Float:
		return "float"
	case String:
		return "string"
	case Strings:
		return "[]string"
	}
	return "any"
}

type (
	// Schema declares kinds of factory arguments.
	Schema []Kind

	// Scope maps names to values. String arguments equal to a scope
	// name are replaced by the value before coercion.
	Scope map[string]interface{}

	// Factory creates a processor from coerced arguments. Arguments are
	// guaranteed to match the schema: int, uint, float64, string and
	// []string values for the respective kinds.
	Factory func(args []interface{}, l log.Logger) (pipe.Processor, error)

	registration struct {
		schema  Schema
		factory Factory
	}
)

// Registry maps stage types to factories. It's safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]registration
}

// NewRegistry returns empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]registration),
	}
}

// Register adds the factory of stage type.
func (r *Registry) Register(name string, schema Schema, f Factory) error {
	if name == "" || f == nil {
		return errors.New("register: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[name]; ok {
		return fmt.Errorf("register: type %q already registered", name)
	}
	r.types[name] = registration{
		schema:  append(Schema(nil), schema...),
		factory: f,
	}
	return nil
}

// Types returns sorted names of registered types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns schema of the registered type.
func (r *Registry) Schema(name string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[name]
	if !ok {
		return nil, false
	}
	return append(Schema(nil), reg.schema...), true
}

// New creates the processor of the stage.
func (r *Registry) New(s StageDefinition, scope Scope, l log.Logger) (pipe.Processor, error) {
	r.mu.RLock()
	reg, ok := r.types[s.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("stage %q: unknown type %q: %w", s.Key, s.Type, ErrInvalidDefinition)
	}
	args, err := coerce(reg.schema, s.Args, scope)
	if err != nil {
		return nil, fmt.Errorf("stage %q of type %q: %v: %w", s.Key, s.Type, err, ErrInvalidDefinition)
	}
	p, err := reg.factory(args, log.OrSilent(l))
	if err != nil {
		return nil, fmt.Errorf("stage %q of type %q: %w", s.Key, s.Type, err)
	}
	return p, nil
}

func coerce(schema Schema, args []interface{}, scope Scope) ([]interface{}, error) {
	if len(args) != len(schema) {
		return nil, fmt.Errorf("%d arguments, expected %d", len(args), len(schema))
	}
	result := make([]interface{}, len(args))
	for i, arg := range args {
		if name, ok := arg.(string); ok {
			if v, ok := scope[name]; ok {
				arg = v
			}
		}
		v, err := convert(schema[i], arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		result[i] = v
	}
	return result, nil
}

func convert(k Kind, arg interface{}) (interface{}, error) {
	switch k {
	case Any:
		return arg, nil
	case Int:
		if f, ok := number(arg); ok && f == math.Trunc(f) {
			return int(f), nil
		}
	case Uint:
		if f, ok := number(arg); ok && f == math.Trunc(f) && f >= 0 {
			return uint(f), nil
		}
	case Float:
		if f, ok := number(arg); ok {
			return f, nil
		}
	case String:
		if s, ok := arg.(string); ok {
			return s, nil
		}
	case Strings:
		switch v := arg.(type) {
		case []string:
			return append([]string(nil), v...), nil
		case []interface{}:
			result := make([]string, 0, len(v))
			for _, s := range v {
				str, ok := s.(string)
				if !ok {
					return nil, fmt.Errorf("%v (%T) is not %v", arg, arg, k)
				}
				result = append(result, str)
			}
			return result, nil
		}
	}
	return nil, fmt.Errorf("%v (%T) is not %v", arg, arg, k)
}

func number(arg interface{}) (float64, bool) {
	switch v := arg.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	}
	return 0, false
}
