// Package sqlite provides the embedded store backend, built on the Bun
// ORM with the sqliteshim driver (pure-Go modernc fallback, CGo mattn
// driver when available).
//
// The store opens the database with a single connection. SQLite permits
// one writer at a time; a single connection serializes claims so the
// UPDATE … RETURNING dequeue is atomic without busy-retry handling.
//
//	st, err := sqlite.Open("toil.db")
//	if err != nil { ... }
//	defer st.Close()
//	if err := st.Migrate(ctx); err != nil { ... }
package sqlite
