// Package storage persists the task collection.
//
// Drivers:
//   - file:   a single JSON document, replaced atomically (temp file + rename)
//   - sqlite: a tasks table, rewritten inside one transaction
//   - none:   no durability (Open returns a nil Backend)
package storage
