package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/marsha-lti/internal/models"
	"github.com/noah-isme/marsha-lti/pkg/database"
	appErrors "github.com/noah-isme/marsha-lti/pkg/errors"
)

type ltiAssociationStore interface {
	FindBySiteAndUser(ctx context.Context, consumerSiteID, ltiUserID string) (*models.LtiUserAssociation, error)
	Create(ctx context.Context, association *models.LtiUserAssociation) error
}

// LtiAssociationService binds LTI users of a consumer site to accounts.
type LtiAssociationService struct {
	repo   ltiAssociationStore
	logger *zap.Logger
}

func NewLtiAssociationService(repo ltiAssociationStore, logger *zap.Logger) *LtiAssociationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LtiAssociationService{repo: repo, logger: logger}
}

// Associate records that ltiUserID on the site is userID. An existing
// binding is never overwritten.
func (s *LtiAssociationService) Associate(ctx context.Context, consumerSiteID, ltiUserID, userID string) (*models.LtiUserAssociation, error) {
	if consumerSiteID == "" || ltiUserID == "" || userID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "consumer site, lti user and user are required")
	}
	association := &models.LtiUserAssociation{ConsumerSiteID: consumerSiteID, LTIUserID: ltiUserID, UserID: userID}
	if err := s.repo.Create(ctx, association); err != nil {
		if database.IsUniqueViolation(err) {
			s.logger.Warn("lti user already associated",
				zap.String("consumer_site_id", consumerSiteID),
				zap.String("lti_user_id", ltiUserID),
				zap.String("constraint", database.ConstraintName(err)),
			)
			return nil, appErrors.ErrAlreadyAssociated
		}
		if database.IsForeignKeyViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "user or consumer site not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lti user association")
	}
	s.logger.Info("lti user associated",
		zap.String("consumer_site_id", consumerSiteID),
		zap.String("lti_user_id", ltiUserID),
		zap.String("user_id", userID),
	)
	return association, nil
}

// Lookup returns the account bound to ltiUserID, or "" when none is.
func (s *LtiAssociationService) Lookup(ctx context.Context, consumerSiteID, ltiUserID string) (string, error) {
	association, err := s.repo.FindBySiteAndUser(ctx, consumerSiteID, ltiUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lti user association")
	}
	return association.UserID, nil
}
