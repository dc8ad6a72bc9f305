package shared

// ListFilters represents standard list filters for master data.
type ListFilters struct {
	Limit   int
	Offset  int
	Search  string
	Company string
	// Only applies to entities that can be disabled.
	IncludeDisabled bool
}
