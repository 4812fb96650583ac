package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/marsha-lti/internal/dto"
	"github.com/noah-isme/marsha-lti/internal/models"
	appErrors "github.com/noah-isme/marsha-lti/pkg/errors"
)

type passportSiteLookup interface {
	FindPassportSite(ctx context.Context, consumerKey string) (*models.PassportSite, error)
}

type associationLookup interface {
	FindBySiteAndUser(ctx context.Context, consumerSiteID, ltiUserID string) (*models.LtiUserAssociation, error)
}

type resourceResolver interface {
	GetOrCreateResource(ctx context.Context, launch models.LaunchContext) (*models.Resource, error)
}

type resourceTokenIssuer interface {
	Issue(claims *models.ResourceClaims) (string, time.Time, error)
}

// LaunchConfig tunes launch handling.
type LaunchConfig struct {
	// InstructorRoles are matched case-insensitively against the last
	// segment of each launch role.
	InstructorRoles []string
	PassportTTL     time.Duration
}

// LaunchService turns an authenticated LTI launch into a resource and a
// resource token.
type LaunchService struct {
	validator    *validator.Validate
	passports    passportSiteLookup
	associations associationLookup
	resolver     resourceResolver
	tokens       resourceTokenIssuer
	cache        *CacheService
	instructor   map[string]struct{}
	passportTTL  time.Duration
	logger       *zap.Logger
}

// NewLaunchService constructs a LaunchService.
func NewLaunchService(
	validate *validator.Validate,
	passports passportSiteLookup,
	associations associationLookup,
	resolver resourceResolver,
	tokens resourceTokenIssuer,
	cache *CacheService,
	cfg LaunchConfig,
	logger *zap.Logger,
) *LaunchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	roles := cfg.InstructorRoles
	if len(roles) == 0 {
		roles = []string{"instructor", "administrator"}
	}
	instructor := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		instructor[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}
	return &LaunchService{
		validator:    validate,
		passports:    passports,
		associations: associations,
		resolver:     resolver,
		tokens:       tokens,
		cache:        cache,
		instructor:   instructor,
		passportTTL:  cfg.PassportTTL,
		logger:       logger,
	}
}

// Launch resolves the resource of kind for req. An unavailable resource is
// reported through the response state, not as an error.
func (s *LaunchService) Launch(ctx context.Context, kind models.ResourceKind, req dto.LaunchRequest) (*dto.LaunchResponse, error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown resource kind")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid launch payload")
	}

	passport, err := s.passportSite(ctx, req.OAuthConsumerKey)
	if err != nil {
		return nil, err
	}

	roles := splitRoles(req.Roles)
	launch := models.LaunchContext{
		Kind:           kind,
		ResourceLinkID: req.ResourceLinkID,
		ResourceTitle:  req.ResourceLinkTitle,
		ContextID:      req.ContextID,
		ContextTitle:   req.ContextTitle,
		ConsumerSite:   passport.Site,
		LTIUserID:      req.UserID,
		IsInstructor:   s.isInstructor(roles),
	}

	resource, err := s.resolver.GetOrCreateResource(ctx, launch)
	if err != nil {
		return nil, err
	}

	resp := &dto.LaunchResponse{
		State:        dto.LaunchStateNotAvailable,
		Kind:         kind,
		IsInstructor: launch.IsInstructor,
	}
	claims := &models.ResourceClaims{
		ResourceKind:   kind,
		ConsumerSiteID: passport.Site.ID,
		ContextID:      launch.ContextID,
		LTIUserID:      launch.LTIUserID,
		Roles:          roles,
		IsInstructor:   launch.IsInstructor,
		Permissions:    models.ResourcePermissions{CanUpdate: launch.IsInstructor},
	}
	if resource != nil {
		resp.State = dto.LaunchStateAvailable
		resp.Resource = resource
		claims.ResourceID = resource.ID
		claims.PlaylistID = resource.PlaylistID
	}

	if userID := s.associatedUser(ctx, passport.Site.ID, launch.LTIUserID); userID != "" {
		claims.UserID = userID
		resp.UserID = &userID
	}

	token, _, err := s.tokens.Issue(claims)
	if err != nil {
		return nil, err
	}
	resp.Token = token

	s.logger.Info("lti launch resolved",
		zap.String("kind", string(kind)),
		zap.String("consumer_site", passport.Site.Domain),
		zap.String("context_id", launch.ContextID),
		zap.String("state", string(resp.State)),
		zap.Bool("instructor", launch.IsInstructor),
	)
	return resp, nil
}

func passportCacheKey(consumerKey string) string {
	return "passport:" + consumerKey
}

// passportSite loads the passport behind consumerKey. Only enabled passports
// are cached, so a passport disabled after it was cached keeps launching until
// its entry expires after passportTTL.
func (s *LaunchService) passportSite(ctx context.Context, consumerKey string) (*models.PassportSite, error) {
	var site models.PassportSite
	if !s.cache.Get(ctx, passportCacheKey(consumerKey), &site) {
		found, err := s.passports.FindPassportSite(ctx, consumerKey)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown lti passport")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lti passport")
		}
		site = *found
		if site.IsEnabled {
			s.cache.Set(ctx, passportCacheKey(consumerKey), site, s.passportTTL)
		}
	}
	if !site.IsEnabled {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "lti passport revoked")
	}
	return &site, nil
}

func (s *LaunchService) associatedUser(ctx context.Context, siteID, ltiUserID string) string {
	if ltiUserID == "" {
		return ""
	}
	association, err := s.associations.FindBySiteAndUser(ctx, siteID, ltiUserID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to look up lti user association",
				zap.String("consumer_site_id", siteID),
				zap.String("lti_user_id", ltiUserID),
				zap.Error(err),
			)
		}
		return ""
	}
	return association.UserID
}

func splitRoles(raw string) []string {
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, part := range parts {
		if role := strings.TrimSpace(part); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

// isInstructor accepts plain roles ("Instructor") and LIS URNs
// ("urn:lti:role:ims/lis/Instructor").
func (s *LaunchService) isInstructor(roles []string) bool {
	for _, role := range roles {
		name := role
		if i := strings.LastIndexAny(name, "/#:"); i >= 0 {
			name = name[i+1:]
		}
		if _, ok := s.instructor[strings.ToLower(name)]; ok {
			return true
		}
	}
	return false
}
