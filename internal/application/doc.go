// Package application provides application initialization and dependency wiring.
// It opens the configuration store, builds the handlers and router around it,
// and owns the HTTP server lifecycle (start and graceful shutdown) shared by
// the server binary and the CLI serve command.
package application
