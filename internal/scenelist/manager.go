// Package scenelist manages the server-side working lists that scope
// download-options queries.
package scenelist

import (
	"context"
	"fmt"
	"strings"

	"github.com/scenefetch/scenefetch/internal/api"
	"github.com/scenefetch/scenefetch/internal/constants"
	"github.com/scenefetch/scenefetch/internal/logging"
	"github.com/scenefetch/scenefetch/internal/models"
	"github.com/scenefetch/scenefetch/internal/validation"
)

// Service is the subset of the M2M client used for list management.
type Service interface {
	SceneListAdd(ctx context.Context, listID, dataset string, entityIDs []string) (int, error)
	SceneListRemove(ctx context.Context, listID string) error
}

// Manager adds and removes entity ids on named working lists.
type Manager struct {
	svc    Service
	logger *logging.Logger
}

// NewManager creates a Manager. A nil logger disables logging.
func NewManager(svc Service, logger *logging.Logger) *Manager {
	return &Manager{svc: svc, logger: logging.OrNop(logger)}
}

// Add registers entityIDs on listID and returns the number the service accepted.
func (m *Manager) Add(ctx context.Context, listID, dataset string, entityIDs []string) (int, error) {
	if err := validation.ValidateListID(listID); err != nil {
		return 0, err
	}
	if len(entityIDs) == 0 {
		return 0, fmt.Errorf("no entity ids to add to list %s", listID)
	}
	for _, id := range entityIDs {
		if err := validation.ValidateEntityID(id); err != nil {
			return 0, err
		}
	}

	count, err := m.svc.SceneListAdd(ctx, listID, dataset, entityIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to add %d scenes to list %s: %w", len(entityIDs), listID, err)
	}
	if count != len(entityIDs) {
		m.logger.Warn().
			Str("list", listID).
			Int("requested", len(entityIDs)).
			Int("added", count).
			Msg("Service added fewer scenes than requested")
	} else {
		m.logger.Debug().Str("list", listID).Int("added", count).Msg("Scenes added to working list")
	}
	return count, nil
}

// Remove deletes listID. Removing a list that does not exist succeeds.
func (m *Manager) Remove(ctx context.Context, listID string) error {
	err := m.svc.SceneListRemove(ctx, listID)
	if err == nil || isMissingList(err) {
		if err != nil {
			m.logger.Debug().Str("list", listID).Msg("Working list already gone")
		}
		return nil
	}
	return fmt.Errorf("failed to remove list %s: %w", listID, err)
}

// Scoped registers list.Members on list.ID, runs fn, and removes the list
// afterwards whether fn succeeds or not. A removal failure is logged and only
// returned when fn itself succeeded.
func (m *Manager) Scoped(ctx context.Context, list models.WorkingList, fn func(ctx context.Context) error) error {
	if _, err := m.Add(ctx, list.ID, list.Dataset, list.Members); err != nil {
		// a partial add may have created the list
		m.cleanup(list.ID)
		return err
	}

	fnErr := fn(ctx)

	removeErr := m.cleanup(list.ID)
	if fnErr != nil {
		return fnErr
	}
	return removeErr
}

// cleanup removes a list on a fresh context so that cancellation of the batch
// does not leave the list behind.
func (m *Manager) cleanup(listID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), constants.APIContextTimeout)
	defer cancel()

	if err := m.Remove(ctx, listID); err != nil {
		m.logger.Warn().Err(err).Str("list", listID).Msg("Failed to remove working list")
		return err
	}
	return nil
}

// isMissingList reports whether err says the list is already absent.
func isMissingList(err error) bool {
	if api.IsNotFound(err) {
		return true
	}
	te, ok := api.AsTransportError(err)
	if !ok || te.Kind != api.KindServiceError {
		return false
	}
	msg := strings.ToLower(te.Code + " " + te.Message)
	return strings.Contains(msg, "not exist") || strings.Contains(msg, "not found")
}
