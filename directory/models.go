package directory

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ZIPCode is a deduplicated postal code with an optional geocoded centroid.
type ZIPCode struct {
	bun.BaseModel `bun:"table:zip_codes,alias:zip"`

	ID        uuid.UUID `bun:"id,pk,notnull" json:"id"`
	Code      string    `bun:"code,notnull,unique" json:"code"`
	City      string    `bun:"city,nullzero" json:"city,omitempty"`
	State     string    `bun:"state,nullzero" json:"state,omitempty"`
	Latitude  *float64  `bun:"latitude,nullzero" json:"latitude,omitempty"`
	Longitude *float64  `bun:"longitude,nullzero" json:"longitude,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Address is a street address shared by any number of resources. Addresses
// are deduplicated on (line one, zip code).
type Address struct {
	bun.BaseModel `bun:"table:addresses,alias:adr"`

	ID        uuid.UUID  `bun:"id,pk,notnull" json:"id"`
	LineOne   string     `bun:"line_one,notnull" json:"line_one"`
	LineTwo   string     `bun:"line_two,nullzero" json:"line_two,omitempty"`
	ZIPCodeID *uuid.UUID `bun:"zip_code_id,nullzero" json:"zip_code_id,omitempty"`
	ZIPCode   *ZIPCode   `bun:"rel:belongs-to,join:zip_code_id=id" json:"zip_code,omitempty"`
	Latitude  *float64   `bun:"latitude,nullzero" json:"latitude,omitempty"`
	Longitude *float64   `bun:"longitude,nullzero" json:"longitude,omitempty"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Resource is a community service listing.
type Resource struct {
	bun.BaseModel `bun:"table:resources,alias:res"`

	ID          uuid.UUID  `bun:"id,pk,notnull" json:"id"`
	Name        string     `bun:"name,notnull" json:"name"`
	Description string     `bun:"description,nullzero" json:"description,omitempty"`
	Website     string     `bun:"website,nullzero" json:"website,omitempty"`
	Phone       string     `bun:"phone,nullzero" json:"phone,omitempty"`
	AddressID   *uuid.UUID `bun:"address_id,nullzero" json:"address_id,omitempty"`
	Address     *Address   `bun:"rel:belongs-to,join:address_id=id" json:"address,omitempty"`
	CreatedBy   *uuid.UUID `bun:"created_by,nullzero" json:"created_by,omitempty"`
	Reviews     []*Review  `bun:"rel:has-many,join:id=resource_id" json:"reviews,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
	DeletedAt   *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// Review is a member's rating of a resource, one per member per resource.
type Review struct {
	bun.BaseModel `bun:"table:resource_reviews,alias:rev"`

	ID         uuid.UUID `bun:"id,pk,notnull" json:"id"`
	ResourceID uuid.UUID `bun:"resource_id,notnull" json:"resource_id"`
	UserID     uuid.UUID `bun:"user_id,notnull" json:"user_id"`
	Rating     int       `bun:"rating,notnull" json:"rating"`
	Comment    string    `bun:"comment,nullzero" json:"comment,omitempty"`
	Likes      int       `bun:"likes,notnull,default:0" json:"likes"`
	Dislikes   int       `bun:"dislikes,notnull,default:0" json:"dislikes"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// AverageRating computes the mean rating across reviews, 0 when unrated.
func (r *Resource) AverageRating() float64 {
	if len(r.Reviews) == 0 {
		return 0
	}

	total := 0
	for _, review := range r.Reviews {
		total += review.Rating
	}

	return float64(total) / float64(len(r.Reviews))
}
