package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultEnvironment is used by the CLI when no environment flag is given.
const DefaultEnvironment = "default"

var (
	// ErrInvalidEnvironment indicates an environment name that cannot be used as a file name.
	ErrInvalidEnvironment = errors.New("environment name must be a plain file name")
)

// Store is the set of operations callers perform against a configuration store.
type Store interface {
	Get(env, key string) (string, bool)
	GetAll(env string) (map[string]string, bool)
	Set(env, key, value string) error
	Delete(env, key string) error
	ListEnvironments() []string
}

// EnvFile returns the backing file for env inside dir, named "<env>.json".
func EnvFile(dir, env string) (string, error) {
	if env == "" || env == "." || env == ".." || strings.ContainsAny(env, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidEnvironment, env)
	}
	return filepath.Join(dir, env+".json"), nil
}
