// Package database opens the lending database and hosts its repositories.
//
// # Architecture
//
//	database/
//	├── database.go      # Connection setup (SQLite or Postgres) and migrations
//	├── inventory/       # Book copy counters, guarded increments/decrements
//	├── borrows/         # Borrow records
//	├── reservations/    # Reservation records and queue positions
//	└── audit/           # Lending audit trail
//
// # Using Sub-packages
//
// Repositories wrap a *gorm.DB. Pass a transaction handle to scope every
// statement to that transaction:
//
//	db, err := database.NewDatabase(cfg.Database)
//
//	err = session.Transaction(func(tx *gorm.DB) error {
//		if err := inventory.NewRepository(tx).DecrementAvailable(bookID); err != nil {
//			return err
//		}
//		return borrows.NewRepository(tx).Add(record)
//	})
//
// Counter mutations are conditional UPDATE statements; a guard that matches
// no row is reported through a package sentinel error, never ignored.
package database
