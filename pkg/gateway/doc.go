// Package gateway routes generation requests to named provider backends.
// Providers are registered as factories and constructed lazily on first
// use, exactly once under concurrent access; the constructed instance
// and its pooled connections then live for the process lifetime.
package gateway
