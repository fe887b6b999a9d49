package core

import "sort"

// CategoryShare is one category's part of total expenses.
type CategoryShare struct {
	Name    string
	Amount  Money
	Percent float64
}

// Shares orders expenses by amount and computes each category's share of
// the total. Categories with no spending are dropped.
func Shares(items []ExpenseByCategory) []CategoryShare {
	var total int64
	for _, it := range items {
		if it.Amount.Cents > 0 {
			total += it.Amount.Cents
		}
	}

	out := make([]CategoryShare, 0, len(items))
	for _, it := range items {
		if it.Amount.Cents <= 0 {
			continue
		}
		out = append(out, CategoryShare{
			Name:    it.Category,
			Amount:  it.Amount,
			Percent: float64(it.Amount.Cents) * 100 / float64(total),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount.Cents > out[j].Amount.Cents
	})
	return out
}
