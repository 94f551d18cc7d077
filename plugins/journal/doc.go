// Package journal records store activity in SQLite.
//
// A Journal is a store plugin factory: every store created with
// store.WithPlugins(j.Plugin()) opens a session and appends one entry per
// commit event and per settled validation. Entries are read back in
// emission order with Entries.
//
// The database uses WAL mode so a journal can be inspected while a store is
// still writing to it.
package journal
