package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roamly/roamly/internal/models"
)

// UserStore persists user accounts and doubles as the user directory:
// the seat allocator validates registered companions through it and
// the review aggregator reads and writes the rating fields.
type UserStore struct {
	docs DocumentStore
}

// NewUserStore wraps a document store.
func NewUserStore(docs DocumentStore) *UserStore {
	return &UserStore{docs: docs}
}

// Create allocates an id and inserts the user. New accounts start at
// full reliability.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	id, err := s.docs.NextID(ctx, CollectionUsers)
	if err != nil {
		return fmt.Errorf("failed to allocate user id: %w", err)
	}
	user.ID = id
	now := time.Now().Unix()
	if user.CreatedAt == 0 {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Reliability = models.ReliabilityScore(user.TripsCompleted, user.TripsAbandoned)

	body, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if _, err := s.docs.Put(ctx, CollectionUsers, formatID(id), body, 0); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Get retrieves a user and the document version for compare-and-set
// updates.
func (s *UserStore) Get(ctx context.Context, id int64) (*models.User, int64, error) {
	doc, err := s.docs.Get(ctx, CollectionUsers, formatID(id))
	if err != nil {
		return nil, 0, err
	}
	user := &models.User{}
	if err := json.Unmarshal(doc.Body, user); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return user, doc.Version, nil
}

// Update writes the user back, expecting the given version.
func (s *UserStore) Update(ctx context.Context, user *models.User, version int64) (int64, error) {
	user.UpdatedAt = time.Now().Unix()
	body, err := json.Marshal(user)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal user: %w", err)
	}
	return s.docs.Put(ctx, CollectionUsers, formatID(user.ID), body, version)
}

// GetByUsername returns the user with the given username, or
// ErrNotFound.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByField(ctx, "username", username)
}

// GetByEmail returns the user with the given email, or ErrNotFound.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByField(ctx, "email", email)
}

// ExistsByUsername reports whether a username is taken.
func (s *UserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := s.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Exists reports whether a user id is present in the directory.
func (s *UserStore) Exists(ctx context.Context, id int64) (bool, error) {
	_, _, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IDsForUsernames resolves usernames to ids. Unknown usernames are
// omitted from the result map.
func (s *UserStore) IDsForUsernames(ctx context.Context, usernames []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(usernames))
	for _, name := range usernames {
		user, err := s.GetByUsername(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ids[name] = user.ID
	}
	return ids, nil
}

func (s *UserStore) getByField(ctx context.Context, field, value string) (*models.User, error) {
	docs, err := s.docs.Query(ctx, CollectionUsers, field, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query users by %s: %w", field, err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	user := &models.User{}
	if err := json.Unmarshal(docs[0].Body, user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return user, nil
}
