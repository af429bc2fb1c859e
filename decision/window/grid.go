package window

import "time"

// CustomerMonth is the unit of analysis.
type CustomerMonth struct {
	CustomerID string    `json:"customer_id"`
	Month      time.Time `json:"bill_month"`
}

// Grid returns every (customer, month) pair in the window, ordered by
// customer then month. Duplicate customer IDs collapse into one.
func Grid(customers []string, w Window) []CustomerMonth {
	seen := make(map[string]bool, len(customers))
	grid := make([]CustomerMonth, 0, len(customers)*w.Len())

	for _, id := range customers {
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, m := range w.months {
			grid = append(grid, CustomerMonth{CustomerID: id, Month: m})
		}
	}

	return grid
}
