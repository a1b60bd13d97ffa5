package model

// Ledger orderings
const (
	OrderByName      = "name"
	OrderByAppliedAt = "applied_at"

	DirectionAsc  = "asc"
	DirectionDesc = "desc"
)

// Entry one row of the migration ledger
type Entry struct {
	Name      string
	AppliedAt string
}
