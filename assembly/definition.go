// Package assembly builds pipelines from declarative definitions. A
// definition lists stages, each created by a registered factory from its
// arguments, and connections between them. Definitions are YAML files,
// JSON is accepted as well.
package assembly

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDefinition is returned when definition can't be decoded or
// doesn't describe a valid pipeline.
var ErrInvalidDefinition = errors.New("invalid pipeline definition")

var validate = validator.New()

type (
	// Definition describes the pipeline.
	Definition struct {
		Stages      []StageDefinition `yaml:"stages" validate:"required,min=1,unique=Key,dive"`
		Connections []Connection      `yaml:"connections" validate:"unique=Key,dive"`
	}

	// StageDefinition describes a single stage. Type is the name of
	// registered factory and Args are passed to it.
	StageDefinition struct {
		Key  string        `yaml:"key" validate:"required"`
		Type string        `yaml:"type" validate:"required"`
		Args []interface{} `yaml:"args"`
	}

	// Connection connects the stage with Key to the Outputs. If Mirror
	// is true, every output receives all items, otherwise outputs share
	// them.
	Connection struct {
		Key     string   `yaml:"key" validate:"required"`
		Mirror  bool     `yaml:"mirror"`
		Outputs []string `yaml:"outputs" validate:"required,min=1,dive,required"`
	}
)

// Load reads definition from the file.
func Load(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads definition and validates it.
func Decode(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var d Definition
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode: %v: %w", err, ErrInvalidDefinition)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks required fields, uniqueness of keys and that all
// connections refer to defined stages.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s failed on %q: %w", verrs[0].Namespace(), verrs[0].Tag(), ErrInvalidDefinition)
		}
		return fmt.Errorf("%v: %w", err, ErrInvalidDefinition)
	}
	keys := make(map[string]struct{}, len(d.Stages))
	for _, s := range d.Stages {
		keys[s.Key] = struct{}{}
	}
	for _, c := range d.Connections {
		if _, ok := keys[c.Key]; !ok {
			return fmt.Errorf("connection of unknown stage %q: %w", c.Key, ErrInvalidDefinition)
		}
		for _, out := range c.Outputs {
			if _, ok := keys[out]; !ok {
				return fmt.Errorf("stage %q connected to unknown stage %q: %w", c.Key, out, ErrInvalidDefinition)
			}
			if out == c.Key {
				return fmt.Errorf("stage %q connected to itself: %w", c.Key, ErrInvalidDefinition)
			}
		}
	}
	return nil
}
