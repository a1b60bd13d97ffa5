package e

// This defines reusable error messages

const (
	MsgUnknownInternalServerError = "Unknown Internal Server Error"

	// config
	MsgConfigDatabaseURLMissing = "MIGRATION_DATABASE_URL must be set"
	MsgConfigEnvInvalid         = "Invalid environment, expected one of: development, test, production"
	MsgConfigIDPolicyInvalid    = "Invalid identifier policy, expected one of: filename, prefix"
	MsgConfigDriverInvalid      = "Invalid driver, expected one of: postgres, pgx, sqlite"
	MsgConfigReadFailed         = "Failed to read configuration"

	// sql
	MsgDBConnectFailed = "Failed to connect to DB"
	MsgDBPingFailed    = "Failed to ping DB"

	// migrations
	MsgMigrationDirNotFound        = "Migration directory does not exist"
	MsgMigrationDirUnreadable      = "Migration directory could not be read"
	MsgMigrationFileNotFound       = "Migration file not found"
	MsgMigrationFileUnreadable     = "Migration file could not be read"
	MsgMigrationFileNameInvalid    = "Invalid migration file name"
	MsgMigrationFileNameDuplicate  = "Duplicate migration identifier"
	MsgMigrationMarkerUpMissing    = "Migration file is missing the '-- up' marker"
	MsgMigrationMarkerDownMissing  = "Migration file is missing the '-- down' marker"
	MsgMigrationMarkerOrder        = "Migration file has '-- down' before '-- up'"
	MsgMigrationMarkerDuplicate    = "Migration file has a duplicated marker"
	MsgMigrationExecFailed         = "Migration SQL failed to execute"
	MsgMigrationAlreadyApplied     = "Migration is already recorded as applied"
	MsgMigrationLedgerUnavailable  = "Migration ledger could not be prepared"
	MsgMigrationLedgerOrderInvalid = "Invalid ledger ordering"
	MsgMigrationLockFailed         = "Failed to acquire migration lock"
)
