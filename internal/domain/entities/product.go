package entities

import "github.com/google/uuid"

// Product is the minimal read-only projection the core needs: whether a
// productRef requires license fulfillment, and its reference price. Full
// product CRUD is an external collaborator.
type Product struct {
	ID          uuid.UUID
	ProductRef  string
	Name        string
	PriceCents  int64
	Currency    string
	LicenseType bool
}
