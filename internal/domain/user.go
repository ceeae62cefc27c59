package domain

import "time"

// Role distinguishes the two sides of the marketplace.
type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleFreelancer
}

// User is a marketplace participant and the subject of ratings.
type User struct {
	ID            string
	Name          string
	Email         string
	Role          Role
	PaypalEmail   *string
	RatingAverage float64
	RatingCount   int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
