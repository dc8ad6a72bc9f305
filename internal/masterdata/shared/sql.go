package shared

import "strconv"

// Placeholder returns the PostgreSQL positional placeholder for n.
func Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
