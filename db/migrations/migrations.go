// Package migrations embeds the SQL schema migrations so the binary can
// migrate its own database without a checkout of the repository. There is
// one directory per SQL dialect; both must describe the same schema.
package migrations

import "embed"

// FS holds mysql/*.sql and sqlite/*.sql.
//
//go:embed mysql/*.sql sqlite/*.sql
var FS embed.FS
