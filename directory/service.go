package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Logger is the logging surface the service needs.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}

// Service exposes the resource directory operations: listings, shared
// addresses and reviews.
type Service struct {
	repos    *Repos
	geocoder Geocoder
	logger   Logger
}

// NewService creates a directory service.
func NewService(repos *Repos) *Service {
	return &Service{
		repos:    repos,
		geocoder: noopGeocoder{},
		logger:   discardLogger{},
	}
}

// WithGeocoder sets the geocoder used to resolve listing coordinates.
func (s *Service) WithGeocoder(g Geocoder) *Service {
	s.geocoder = normalizeGeocoder(g)
	return s
}

// WithLogger overrides the service logger.
func (s *Service) WithLogger(l Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// NormalizeZIP trims and upper-cases a postal code.
func NormalizeZIP(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GetOrCreateZIPCode returns the canonical record for a postal code,
// creating it on first sight so duplicates never accumulate.
func (s *Service) GetOrCreateZIPCode(ctx context.Context, tx bun.IDB, code string) (*ZIPCode, error) {
	code = NormalizeZIP(code)
	if code == "" {
		return nil, errors.New("zip code is required", errors.CategoryBadInput)
	}

	record := &ZIPCode{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.code = ?", code).
		Limit(1).
		Scan(ctx)

	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up zip code")
	}

	record = &ZIPCode{
		ID:   uuid.New(),
		Code: code,
	}

	if coords, gerr := s.geocoder.Geocode(ctx, code); gerr != nil {
		s.logger.Warn("zip geocode failed for %s: %v", code, gerr)
	} else if coords != nil {
		record.Latitude = &coords.Latitude
		record.Longitude = &coords.Longitude
	}

	if _, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (code) DO UPDATE").
		Set("code = EXCLUDED.code").
		Returning("*").
		Exec(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to store zip code")
	}

	return record, nil
}

// AddressInput is the data needed to resolve or create a shared address.
type AddressInput struct {
	LineOne string
	LineTwo string
	ZIP     string
}

// GetOrCreateAddress resolves an address to its canonical record, creating
// it (and its zip code) when unseen. Matching is on line one plus zip.
func (s *Service) GetOrCreateAddress(ctx context.Context, tx bun.IDB, input AddressInput) (*Address, error) {
	lineOne := strings.TrimSpace(input.LineOne)
	if lineOne == "" {
		return nil, errors.New("address line is required", errors.CategoryBadInput)
	}

	zip, err := s.GetOrCreateZIPCode(ctx, tx, input.ZIP)
	if err != nil {
		return nil, err
	}

	record := &Address{}
	err = tx.NewSelect().
		Model(record).
		Where("lower(?TableAlias.line_one) = lower(?)", lineOne).
		Where("?TableAlias.zip_code_id = ?", zip.ID).
		Limit(1).
		Scan(ctx)

	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up address")
	}

	record = &Address{
		ID:        uuid.New(),
		LineOne:   lineOne,
		LineTwo:   strings.TrimSpace(input.LineTwo),
		ZIPCodeID: &zip.ID,
	}

	query := fmt.Sprintf("%s, %s", lineOne, zip.Code)
	if coords, gerr := s.geocoder.Geocode(ctx, query); gerr != nil {
		s.logger.Warn("address geocode failed for %q: %v", query, gerr)
	} else if coords != nil {
		record.Latitude = &coords.Latitude
		record.Longitude = &coords.Longitude
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to store address")
	}

	return record, nil
}

// ResourceInput holds the attributes of a listing.
type ResourceInput struct {
	Name        string
	Description string
	Website     string
	Phone       string
	Address     *AddressInput
	CreatedBy   uuid.UUID
}

// CreateResource adds a listing, resolving its address through the shared
// address pool.
func (s *Service) CreateResource(ctx context.Context, input ResourceInput) (*Resource, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.New("resource name is required", errors.CategoryBadInput)
	}

	record := &Resource{
		ID:          uuid.New(),
		Name:        name,
		Description: input.Description,
		Website:     input.Website,
		Phone:       input.Phone,
	}

	if input.CreatedBy != uuid.Nil {
		createdBy := input.CreatedBy
		record.CreatedBy = &createdBy
	}

	err := s.repos.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if input.Address != nil {
			address, err := s.GetOrCreateAddress(ctx, tx, *input.Address)
			if err != nil {
				return err
			}
			record.AddressID = &address.ID
			record.Address = address
		}

		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to store resource")
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return record, nil
}

// UpdateResource applies new attributes to an existing listing.
func (s *Service) UpdateResource(ctx context.Context, id uuid.UUID, input ResourceInput) (*Resource, error) {
	var record *Resource

	err := s.repos.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		record = &Resource{}
		if err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx); err != nil {
			return errors.Wrap(err, errors.CategoryNotFound, "resource not found").
				WithMetadata(map[string]any{"id": id.String()})
		}

		record.Name = strings.TrimSpace(input.Name)
		record.Description = input.Description
		record.Website = input.Website
		record.Phone = input.Phone
		record.UpdatedAt = time.Now()

		if input.Address != nil {
			address, err := s.GetOrCreateAddress(ctx, tx, *input.Address)
			if err != nil {
				return err
			}
			record.AddressID = &address.ID
			record.Address = address
		}

		if _, err := tx.NewUpdate().
			Model(record).
			WherePK().
			Exec(ctx); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to update resource")
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return record, nil
}

// GetResource fetches one listing with its address and reviews.
func (s *Service) GetResource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	record := &Resource{}
	err := s.repos.db.NewSelect().
		Model(record).
		Relation("Address").
		Relation("Address.ZIPCode").
		Relation("Reviews").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryNotFound, "resource not found").
			WithMetadata(map[string]any{"id": id.String()})
	}

	return record, nil
}

// Search finds listings whose name matches the term, case-insensitively.
func (s *Service) Search(ctx context.Context, term string, limit int) ([]*Resource, error) {
	if limit <= 0 {
		limit = 25
	}

	var records []*Resource
	q := s.repos.db.NewSelect().
		Model(&records).
		Relation("Address").
		Order("name ASC").
		Limit(limit)

	if term = strings.TrimSpace(term); term != "" {
		q = q.Where("lower(?TableAlias.name) LIKE lower(?)", "%"+term+"%")
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "resource search failed")
	}

	return records, nil
}

// ReviewInput holds a member's rating of a resource.
type ReviewInput struct {
	ResourceID uuid.UUID
	UserID     uuid.UUID
	Rating     int
	Comment    string
}

// AddReview records a member's rating. A member reviews a resource once;
// reviewing again replaces the previous rating.
func (s *Service) AddReview(ctx context.Context, input ReviewInput) (*Review, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return nil, errors.New("rating must be between 1 and 5", errors.CategoryValidation).
			WithMetadata(map[string]any{"rating": input.Rating})
	}

	record := &Review{
		ID:         uuid.New(),
		ResourceID: input.ResourceID,
		UserID:     input.UserID,
		Rating:     input.Rating,
		Comment:    input.Comment,
	}

	err := s.repos.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (resource_id, user_id) DO UPDATE").
			Set("rating = EXCLUDED.rating").
			Set("comment = EXCLUDED.comment").
			Set("updated_at = CURRENT_TIMESTAMP").
			Returning("*").
			Exec(ctx); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to store review")
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return record, nil
}

// DeleteReview removes a member's review. Only the author may delete it.
func (s *Service) DeleteReview(ctx context.Context, reviewID, userID uuid.UUID) error {
	res, err := s.repos.db.NewDelete().
		Model((*Review)(nil)).
		Where("id = ?", reviewID).
		Where("user_id = ?", userID).
		Exec(ctx)

	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete review")
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return errors.New("review not found", errors.CategoryNotFound).
			WithMetadata(map[string]any{"id": reviewID.String()})
	}

	return nil
}

// ReactToReview bumps the like or dislike counter on a review.
func (s *Service) ReactToReview(ctx context.Context, reviewID uuid.UUID, like bool) error {
	column := "likes"
	if !like {
		column = "dislikes"
	}

	res, err := s.repos.db.NewUpdate().
		Model((*Review)(nil)).
		Set(fmt.Sprintf("%s = %s + 1", column, column)).
		Where("id = ?", reviewID).
		Exec(ctx)

	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to react to review")
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return errors.New("review not found", errors.CategoryNotFound).
			WithMetadata(map[string]any{"id": reviewID.String()})
	}

	return nil
}
