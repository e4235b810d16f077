package entity

import "time"

const (
	PackageStatusInactive int32 = 0
	PackageStatusActive   int32 = 10
)

type Package struct {
	ID        string
	IdolID    string
	Name      string
	Price     int64
	Currency  string
	Status    int32
	CreatedAt time.Time
	UpdatedAt time.Time
}
