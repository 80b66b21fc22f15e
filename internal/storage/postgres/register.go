package postgres

import "sparkifyetl/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", New)
}
