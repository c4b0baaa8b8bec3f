package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Car struct {
	ID           string          `json:"id"`
	Make         string          `json:"make"`
	Model        string          `json:"model"`
	Year         int             `json:"year"`
	Price        decimal.Decimal `json:"price"`
	Mileage      int             `json:"mileage"`
	Color        string          `json:"color"`
	Engine       string          `json:"engine"`
	Horsepower   int             `json:"horsepower"`
	Transmission string          `json:"transmission"`
	ImageURL     string          `json:"image_url"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
}
