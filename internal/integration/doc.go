// Package integration holds end-to-end tests that run the daemon socket
// and the source watcher against a full service.
package integration
