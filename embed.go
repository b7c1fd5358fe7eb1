package screenassist

import "embed"

// MigrationsFS holds the SQL migrations for the Postgres session store.
//
//go:embed migrations
var MigrationsFS embed.FS
