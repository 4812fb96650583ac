package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/marsha-lti/internal/models"
	"github.com/noah-isme/marsha-lti/pkg/database"
	appErrors "github.com/noah-isme/marsha-lti/pkg/errors"
)

type portabilityRequestStore interface {
	Create(ctx context.Context, request *models.PortabilityRequest) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PortabilityRequest, error)
	UpdateState(ctx context.Context, exec sqlx.ExtContext, request *models.PortabilityRequest) error
}

type portabilityPlaylistStore interface {
	FindByID(ctx context.Context, id string) (*models.Playlist, error)
	CreatePortability(ctx context.Context, exec sqlx.ExtContext, portability *models.PlaylistPortability) error
}

// PortabilityService handles requests to reuse another playlist's content.
type PortabilityService struct {
	tx        txBeginner
	requests  portabilityRequestStore
	playlists portabilityPlaylistStore
	logger    *zap.Logger
}

func NewPortabilityService(tx txBeginner, requests portabilityRequestStore, playlists portabilityPlaylistStore, logger *zap.Logger) *PortabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortabilityService{tx: tx, requests: requests, playlists: playlists, logger: logger}
}

// Request asks the instructors of forPlaylistID to let the token's playlist
// reuse its resources.
func (s *PortabilityService) Request(ctx context.Context, claims *models.ResourceClaims, forPlaylistID string) (*models.PortabilityRequest, error) {
	if claims == nil || !claims.IsInstructor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can request portability")
	}
	if claims.PlaylistID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "token is not bound to a playlist")
	}
	if claims.PlaylistID == forPlaylistID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a playlist cannot request portability to itself")
	}
	if _, err := s.playlists.FindByID(ctx, forPlaylistID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "playlist not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load playlist")
	}

	request := &models.PortabilityRequest{
		ForPlaylistID:         forPlaylistID,
		FromPlaylistID:        claims.PlaylistID,
		FromLTIConsumerSiteID: optional(claims.ConsumerSiteID),
		FromLTIUserID:         optional(claims.LTIUserID),
		FromUserID:            optional(claims.UserID),
		State:                 models.PortabilityPending,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a pending portability request already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create portability request")
	}
	s.logger.Info("portability requested",
		zap.String("request_id", request.ID),
		zap.String("from_playlist", request.FromPlaylistID),
		zap.String("for_playlist", request.ForPlaylistID),
	)
	return request, nil
}

// Accept grants the request and records the portability edge
// for_playlist -> from_playlist in the same transaction.
func (s *PortabilityService) Accept(ctx context.Context, claims *models.ResourceClaims, id string) (*models.PortabilityRequest, error) {
	return s.decide(ctx, claims, id, models.PortabilityAccepted)
}

// Reject declines the request.
func (s *PortabilityService) Reject(ctx context.Context, claims *models.ResourceClaims, id string) (*models.PortabilityRequest, error) {
	return s.decide(ctx, claims, id, models.PortabilityRejected)
}

func (s *PortabilityService) decide(ctx context.Context, claims *models.ResourceClaims, id string, state models.PortabilityRequestState) (request *models.PortabilityRequest, err error) {
	if claims == nil || !claims.IsInstructor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can answer portability requests")
	}

	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	request, err = s.requests.FindByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "portability request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load portability request")
	}
	if request.ForPlaylistID != claims.PlaylistID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not grant access to the requested playlist")
	}
	if request.State != models.PortabilityPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "portability request already "+string(request.State))
	}

	request.State = state
	request.UpdatedByUserID = optional(claims.UserID)
	if err = s.requests.UpdateState(ctx, tx, request); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "portability request is no longer pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update portability request")
	}
	if state == models.PortabilityAccepted {
		edge := &models.PlaylistPortability{SourcePlaylistID: request.ForPlaylistID, TargetPlaylistID: request.FromPlaylistID}
		if err = s.playlists.CreatePortability(ctx, tx, edge); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant portability")
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit portability decision")
	}

	s.logger.Info("portability request decided",
		zap.String("request_id", request.ID),
		zap.String("state", string(state)),
	)
	return request, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
