package history

// DefaultRetention is the number of entries kept when no bound is configured.
const DefaultRetention = 1000

// ListOptions filters ledger reads. Results are always newest first.
type ListOptions struct {
	EntityID string
	Limit    int
}
