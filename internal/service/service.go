package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"missiondir/internal/domain"
	"missiondir/internal/events"
	"missiondir/internal/idgen"
	"missiondir/internal/store"
)

// ValidationError indicates malformed or missing required input. It is
// raised before any store interaction, so a failed call has no side
// effects.
type ValidationError struct {
	Field string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Service implements the two mission operations on top of the record
// store and the identifier generator.
type Service struct {
	DB     *sql.DB
	Store  store.Store
	IDs    *idgen.Generator
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB, st store.Store) Service {
	return Service{
		DB:     db,
		Store:  st,
		IDs:    idgen.New(),
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateMission validates inputs, mints an identifier and writes the
// record. Each successful call creates exactly one new record; calls with
// identical inputs mint distinct ids. Store failures surface unretried.
func (s Service) CreateMission(ctx context.Context, name, description, actorID string) (domain.Mission, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Mission{}, ValidationError{Field: "name"}
	}
	if strings.TrimSpace(description) == "" {
		return domain.Mission{}, ValidationError{Field: "description"}
	}
	id, err := s.IDs.Generate()
	if err != nil {
		return domain.Mission{}, err
	}
	m := domain.Mission{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   s.now().UTC().Format(time.RFC3339),
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	if err := s.Store.PutTx(ctx, tx, m); err != nil {
		return domain.Mission{}, fmt.Errorf("put mission: %w", err)
	}
	if err := s.Events.Append(ctx, tx, "mission.create", "mission", m.ID, actorID, events.EventPayload{"name": m.Name}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// GetMission returns the record stored under id. An absent record yields
// store.ErrNotFound, an expected outcome the caller distinguishes from
// failure. No side effects.
func (s Service) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Mission{}, ValidationError{Field: "id"}
	}
	return s.Store.Get(ctx, id)
}
