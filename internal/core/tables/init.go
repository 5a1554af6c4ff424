// Package tables registers the CSV table definitions with the core
// registry. Each file declares its entities with bulk tags, the field specs
// validated per row, and a builder turning a row into an entity.
//
// Import this package for its side effects:
//
//	import _ "github.com/JonMunkholm/pgbulk/internal/core/tables"
package tables
