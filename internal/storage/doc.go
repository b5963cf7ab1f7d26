// Package storage persists the user roster, their action log, and
// broadcast audit rows in a single sqlite file.
package storage
