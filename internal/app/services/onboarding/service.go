// Package onboarding tracks which tutorials a user has already seen.
package onboarding

import (
	"context"
	"errors"
	"regexp"
	"strings"

	domain "github.com/splito-labs/settlement_gateway/internal/app/domain/onboarding"
	"github.com/splito-labs/settlement_gateway/internal/app/storage"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
)

var tutorialPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Status is whether a tutorial was seen.
type Status struct {
	Tutorial string       `json:"tutorial"`
	Seen     bool         `json:"seen"`
	Flag     *domain.Flag `json:"flag,omitempty"`
}

// Service wraps the onboarding store.
type Service struct {
	store storage.OnboardingStore
}

func New(store storage.OnboardingStore) *Service {
	return &Service{store: store}
}

func (s *Service) Status(ctx context.Context, userID, tutorial string) (Status, error) {
	tutorial, err := normalize(userID, tutorial)
	if err != nil {
		return Status{}, err
	}
	flag, err := s.store.GetFlag(ctx, userID, tutorial)
	if errors.Is(err, storage.ErrNotFound) {
		return Status{Tutorial: tutorial}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return Status{Tutorial: tutorial, Seen: true, Flag: &flag}, nil
}

func (s *Service) MarkSeen(ctx context.Context, userID, tutorial string) (Status, error) {
	tutorial, err := normalize(userID, tutorial)
	if err != nil {
		return Status{}, err
	}
	flag, err := s.store.MarkSeen(ctx, userID, tutorial)
	if err != nil {
		return Status{}, err
	}
	return Status{Tutorial: tutorial, Seen: true, Flag: &flag}, nil
}

func (s *Service) Reset(ctx context.Context, userID, tutorial string) error {
	tutorial, err := normalize(userID, tutorial)
	if err != nil {
		return err
	}
	return s.store.ResetFlag(ctx, userID, tutorial)
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.Flag, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.New(apperr.CodeUnauthenticated, "user is required")
	}
	return s.store.ListFlags(ctx, userID)
}

func normalize(userID, tutorial string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", apperr.New(apperr.CodeUnauthenticated, "user is required")
	}
	tutorial = strings.ToLower(strings.TrimSpace(tutorial))
	if !tutorialPattern.MatchString(tutorial) {
		return "", apperr.New(apperr.CodeInvalidRequest, "invalid tutorial name %q", tutorial)
	}
	return tutorial, nil
}
