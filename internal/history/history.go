// Package history filters and pages a customer's already-fetched orders.
package history

import (
	"fmt"

	"furniture-store/internal/model"
)

// FilterAll disables status filtering.
const FilterAll = "all"

// DefaultPageSize is used when a View is created with a non-positive page size.
const DefaultPageSize = 5

// Page is one page of the filtered order list. Page numbers start at 1.
type Page struct {
	Items      []model.Order `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalItems int           `json:"totalItems"`
	TotalPages int           `json:"totalPages"`
	Filter     string        `json:"filter"`
}

// View holds the order list, the active filter and the current page.
type View struct {
	orders   []model.Order
	filtered []model.Order
	filter   string
	pageSize int
	page     int
}

// NewView creates a view over orders, which are expected newest first.
func NewView(orders []model.Order, pageSize int) *View {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	v := &View{orders: orders, pageSize: pageSize}
	v.apply(FilterAll)
	return v
}

// SetFilter selects an order status or FilterAll and moves back to page 1.
func (v *View) SetFilter(status string) error {
	if status == "" {
		status = FilterAll
	}
	if status != FilterAll && !model.OrderStatus(status).Valid() {
		return fmt.Errorf("%w: unknown order status %q", model.ErrValidation, status)
	}
	v.apply(status)
	return nil
}

// Filter returns the active filter.
func (v *View) Filter() string {
	return v.filter
}

// Current returns the page last selected.
func (v *View) Current() Page {
	return v.Page(v.page)
}

// Page selects page n, clamped to [1, last page], and returns it.
func (v *View) Page(n int) Page {
	total := len(v.filtered)
	pages := (total + v.pageSize - 1) / v.pageSize
	if pages == 0 {
		pages = 1
	}

	switch {
	case n < 1:
		n = 1
	case n > pages:
		n = pages
	}
	v.page = n

	start := (n - 1) * v.pageSize
	end := min(start+v.pageSize, total)

	return Page{
		Items:      v.filtered[start:end],
		Page:       n,
		PageSize:   v.pageSize,
		TotalItems: total,
		TotalPages: pages,
		Filter:     v.filter,
	}
}

func (v *View) apply(status string) {
	v.filter = status
	v.page = 1

	if status == FilterAll {
		v.filtered = v.orders
		return
	}

	v.filtered = make([]model.Order, 0, len(v.orders))
	for _, o := range v.orders {
		if string(o.OrderStatus) == status {
			v.filtered = append(v.filtered, o)
		}
	}
}
