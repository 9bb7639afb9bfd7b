// Package config provides the read-only key/value view of a device's configuration.
//
// Configuration is supplied once when a deployment is set up. A lookup of a key that the
// device does not define is an error, never a default value.
package config

import (
	"errors"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ErrMissingKey is matched by every MissingKeyError when tested with errors.Is.
var ErrMissingKey = errors.New("missing config key")

// MissingKeyError reports that a requested key is absent from a device's configuration.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("no key %s in config", e.Key)
}

// Is makes errors.Is(err, ErrMissingKey) succeed for any MissingKeyError.
func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingKey
}

// Config is a read-only view of one device's configuration.
type Config interface {
	// Get returns the value for key, or a *MissingKeyError if there is none.
	Get(key string) (string, error)

	// Keys returns all defined keys in sorted order.
	Keys() []string
}

type mapConfig struct {
	values map[string]string
}

// Map returns a Config backed by a copy of values, so later changes to the map are not visible
// through the Config.
func Map(values map[string]string) Config {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return mapConfig{values: copied}
}

// Empty returns a Config with no keys.
func Empty() Config { return mapConfig{} }

func (c mapConfig) Get(key string) (string, error) {
	if value, ok := c.values[key]; ok {
		return value, nil
	}
	return "", &MissingKeyError{Key: key}
}

func (c mapConfig) Keys() []string {
	keys := maps.Keys(c.values)
	slices.Sort(keys)
	return keys
}

func (c mapConfig) String() string {
	return fmt.Sprintf("config%v", c.Keys())
}
