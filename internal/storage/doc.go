// Package storage holds the namespaced configuration store. Values are grouped
// by environment, guarded by a single mutex and persisted to one JSON file
// after every mutation.
package storage
