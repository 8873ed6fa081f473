package inventory

import "github.com/shopspring/decimal"

// Product is the catalog projection checkout and the ledger need.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Category     string          `json:"category"`
	Image        string          `json:"image"`
	Price        decimal.Decimal `json:"price"`
	CountInStock int             `json:"countInStock"`
	NumSales     int             `json:"numSales"`
}

type StockItem struct {
	ProductID    string `json:"productId"`
	CountInStock int    `json:"countInStock"`
}

type Line struct {
	ProductID string
	Quantity  int
}

// NegativeLine is a product whose stock went below zero after a decrement.
type NegativeLine struct {
	ProductID string
	Requested int
	Remaining int
}

type DecrementResult struct {
	Decremented []Line
	Negative    []NegativeLine
}
