// Package all registers every storage backend with the factory. Binaries
// blank-import it so the config can select any supported kind at runtime.
package all

import (
	_ "sparkifyetl/internal/storage/mssql"
	_ "sparkifyetl/internal/storage/postgres"
	_ "sparkifyetl/internal/storage/sqlite"
)
