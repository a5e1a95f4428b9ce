// Package store is a registry of blob store implementations.
// Each implementation registers a Factory under a type name in its init function,
// so that a blob store can be built from configuration with Create.
package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/cncp"
)

// Factory builds a blob store from a configuration map.
type Factory func(context.Context, map[string]interface{}) (cncp.Store, error)

var registry = make(map[string]Factory)

// Register makes a Factory available under the given type name.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create builds a blob store of the given type.
func Create(ctx context.Context, key string, conf map[string]interface{}) (cncp.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// Nested builds the blob store described by conf["nested"],
// for use by stores that wrap another.
func Nested(ctx context.Context, conf map[string]interface{}) (cncp.Store, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "nested" parameter`)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, errors.New(`"nested" parameter missing "type"`)
	}
	s, err := Create(ctx, nestedType, nested)
	return s, errors.Wrap(err, "creating nested store")
}

// Secret returns the signing secret in conf["secret"],
// or a fresh random one if there is none.
func Secret(conf map[string]interface{}) ([]byte, error) {
	if s, ok := conf["secret"].(string); ok && s != "" {
		return []byte(s), nil
	}
	return cncp.NewSecret()
}
