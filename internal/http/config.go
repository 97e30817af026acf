package http

import (
	"github.com/mrlokans/lending/internal/database"
	"github.com/mrlokans/lending/internal/pool"
)

// RouterConfig contains all dependencies needed to create the HTTP router.
// Optional controllers are only registered when their dependency is set.
type RouterConfig struct {
	// Core dependencies
	Borrows      BorrowAPI
	Reservations ReservationAPI
	Catalog      CatalogAPI

	// Health reporting
	Database *database.Database
	Pool     *pool.Pool

	// Background work (optional)
	Scans ScanRunner
	Tasks TaskStatus

	// Audit trail (optional)
	Audit AuditReader

	// Application info
	Version string
}
