// Package artifact contains the staleness policy and concrete implementations
// of core.ArtifactStore.
//
// The canonical ArtifactStore interface lives in the core package to avoid
// dependency cycles and keep domain contracts central. Implementation packages
// like this one (in-memory, file system) and its sub packages (redis, gorm)
// provide storage backends that can be swapped without touching calling code.
// Every backend passes the shared suite in artifact/storetest.
package artifact
