package models

import "time"

// Comment is one user comment attached to a market.
type Comment struct {
	ID        string    `json:"id"`
	MarketID  string    `json:"marketId"`
	Author    string    `json:"author"` // lowercased wallet address
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
