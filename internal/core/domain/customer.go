package domain

import "time"

// Customer is a contact record managed by authenticated users.
//
// CreatedBy and ModifiedBy are weak references: they are cleared, not
// cascaded, when the referenced user is deleted.
type Customer struct {
	ID         string
	Name       string
	Surname    string
	PhotoKey   string
	CreatedBy  *string
	ModifiedBy *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasPhoto reports whether a photo blob is attached to the customer.
func (c *Customer) HasPhoto() bool {
	return c.PhotoKey != ""
}
