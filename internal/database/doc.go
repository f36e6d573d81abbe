// Package database provides SQLite storage for one browsing partition.
//
// Every persistent partition owns a directory with a single database file
// holding visits, cookies that carry an expiry and download records.
// Ephemeral partitions use the same layout in a directory that is removed
// at shutdown.
//
// SQLite (via modernc.org/sqlite) keeps the storage CGO-free and a single
// file per partition, so wiping a partition is a directory removal.
package database
