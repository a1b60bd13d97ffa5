package e

// Constants in here define error codes that are unique to a package/function.
// The first two characters define the package, within this repo, and the
// second two characters define the function within that package. Furthermore,
// when creating an error, the code constant should be extended with a two
// character unique id within the function (e.g. Code0001 + "0A").
//
// Valid values for the characters are: 0-9 and A-Z. Packages starting with a
// number are reserved for packages within this repository.

const (
	// package: migration
	Code0001 = "0001" // package:migration | migration/migrator.go
	Code0002 = "0002" // package:migration | migration/migration_list.go
	Code0003 = "0003" // package:migration/sqlmodel | migration/sqlmodel/migration.go
	Code0004 = "0004" // package:migration | migration/parse.go
	Code0005 = "0005" // package:migration | migration/lock.go

	// package: sql
	Code0201 = "0201" // package:sql | sql/sql.go
	Code0202 = "0202" // package:sql | sql/row.go
	Code0203 = "0203" // package:sql | sql/rows.go
	Code0204 = "0204" // package:sql | sql/dialect.go

	// package: config
	Code0301 = "0301" // package:config | config/loader.go

	// package: main
	Code0401 = "0401" // package:main | cmd/migrate/commands.go
	Code0402 = "0402" // package:main | cmd/migrate/logging.go
)
