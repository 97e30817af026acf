package config

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the main lending database
	DefaultDatabasePath = "./lending.db"

	// DefaultTasksDatabasePath is the default path for the backlite task queue database
	DefaultTasksDatabasePath = "./lending-tasks.db"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)
