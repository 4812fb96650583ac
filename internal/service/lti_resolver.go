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

type resolverPlaylistStore interface {
	FindByLTI(ctx context.Context, exec sqlx.ExtContext, consumerSiteID, ltiID string) (*models.Playlist, error)
	GetOrCreateLTI(ctx context.Context, exec sqlx.ExtContext, playlist *models.Playlist) (bool, error)
	ListPortableSources(ctx context.Context, exec sqlx.ExtContext, targetPlaylistID string) ([]string, error)
}

type resolverResourceStore interface {
	FindInCourse(ctx context.Context, exec sqlx.ExtContext, kind models.ResourceKind, ltiID, contextID, consumerSiteID string) (*models.Resource, error)
	ListCandidates(ctx context.Context, exec sqlx.ExtContext, kind models.ResourceKind, ltiID string) ([]models.ResourceCandidate, error)
	Create(ctx context.Context, exec sqlx.ExtContext, resource *models.Resource) error
}

// boundary says which launch attributes a candidate differs on.
type boundary int

const (
	sameCourseOtherSite boundary = iota
	sameSiteOtherCourse
	otherSiteOtherCourse
)

// LtiResolver decides which resource an LTI launch lands on: an existing one,
// a duplicate of a portable one, a fresh one, or none.
type LtiResolver struct {
	tx        txBeginner
	playlists resolverPlaylistStore
	resources resolverResourceStore
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewLtiResolver constructs the resolver.
func NewLtiResolver(tx txBeginner, playlists resolverPlaylistStore, resources resolverResourceStore, metrics *MetricsService, logger *zap.Logger) *LtiResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LtiResolver{tx: tx, playlists: playlists, resources: resources, metrics: metrics, logger: logger}
}

// GetOrCreateResource returns the resource the launch should display. A nil
// resource with a nil error means nothing is available to a student.
// Instructors always get a resource.
func (r *LtiResolver) GetOrCreateResource(ctx context.Context, launch models.LaunchContext) (*models.Resource, error) {
	if !launch.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown resource kind")
	}
	if launch.ConsumerSite.ID == "" || launch.ContextID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "launch requires a consumer site and a context id")
	}
	ltiID := launch.ResourceLTIID()
	if ltiID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "launch requires a resource link id")
	}

	tx, err := r.tx.Begin(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	resource, outcome, err := r.resolve(ctx, tx, launch, ltiID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			_ = tx.Rollback()
			err = nil
			return r.concurrentWinner(ctx, launch, ltiID)
		}
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit launch resolution")
	}

	r.metrics.RecordResolution(launch.Kind, outcome)
	return resource, nil
}

func (r *LtiResolver) resolve(ctx context.Context, tx sqlx.ExtContext, launch models.LaunchContext, ltiID string) (*models.Resource, string, error) {
	siteID := launch.ConsumerSite.ID

	exact, err := r.resources.FindInCourse(ctx, tx, launch.Kind, ltiID, launch.ContextID, siteID)
	if err == nil {
		return exact, OutcomeExactMatch, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up resource")
	}

	candidates, err := r.resources.ListCandidates(ctx, tx, launch.Kind, ltiID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resource candidates")
	}

	source, crossing, found := pickCandidate(candidates, launch.ContextID, siteID)
	if found {
		grants, err := r.grantedSources(ctx, tx, siteID, launch.ContextID)
		if err != nil {
			return nil, "", err
		}
		if source.IsReady() && isPortable(source, crossing, grants) {
			duplicate, err := r.duplicate(ctx, tx, launch, ltiID, source)
			if err != nil {
				return nil, "", err
			}
			return duplicate, OutcomeDuplicated, nil
		}
	}

	if !launch.IsInstructor {
		return nil, OutcomeUnavailable, nil
	}
	created, err := r.create(ctx, tx, launch, ltiID)
	if err != nil {
		return nil, "", err
	}
	return created, OutcomeCreated, nil
}

// pickCandidate applies the lookup cascade: same course on another site, then
// same site in another course, then anything else. The first non-empty group
// decides and its most authoritative member is returned.
func pickCandidate(candidates []models.ResourceCandidate, contextID, siteID string) (models.ResourceCandidate, boundary, bool) {
	groups := make([][]models.ResourceCandidate, 3)
	for _, candidate := range candidates {
		sameCourse := candidate.PlaylistLTIID != nil && *candidate.PlaylistLTIID == contextID
		sameSite := candidate.PlaylistConsumerSiteID != nil && *candidate.PlaylistConsumerSiteID == siteID
		switch {
		case sameCourse && sameSite:
			continue
		case sameCourse:
			groups[sameCourseOtherSite] = append(groups[sameCourseOtherSite], candidate)
		case sameSite:
			groups[sameSiteOtherCourse] = append(groups[sameSiteOtherCourse], candidate)
		default:
			groups[otherSiteOtherCourse] = append(groups[otherSiteOtherCourse], candidate)
		}
	}
	for b, group := range groups {
		if chosen, ok := models.MostAuthoritative(group); ok {
			return chosen, boundary(b), true
		}
	}
	return models.ResourceCandidate{}, 0, false
}

func isPortable(candidate models.ResourceCandidate, crossing boundary, grants map[string]bool) bool {
	if grants[candidate.PlaylistID] {
		return true
	}
	switch crossing {
	case sameCourseOtherSite:
		return candidate.IsPortableToConsumerSite
	case sameSiteOtherCourse:
		return candidate.IsPortableToPlaylist
	default:
		return candidate.IsPortableToConsumerSite && candidate.IsPortableToPlaylist
	}
}

// grantedSources lists playlists holding an accepted portability grant into
// the launch's playlist. A playlist that does not exist yet has none.
func (r *LtiResolver) grantedSources(ctx context.Context, tx sqlx.ExtContext, siteID, contextID string) (map[string]bool, error) {
	target, err := r.playlists.FindByLTI(ctx, tx, siteID, contextID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load launch playlist")
	}
	sources, err := r.playlists.ListPortableSources(ctx, tx, target.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load portability grants")
	}
	grants := make(map[string]bool, len(sources))
	for _, id := range sources {
		grants[id] = true
	}
	return grants, nil
}

func (r *LtiResolver) launchPlaylist(ctx context.Context, tx sqlx.ExtContext, launch models.LaunchContext) (*models.Playlist, error) {
	title := launch.ContextTitle
	if title == "" {
		title = launch.ContextID
	}
	contextID := launch.ContextID
	siteID := launch.ConsumerSite.ID
	playlist := &models.Playlist{
		Title:                title,
		LTIID:                &contextID,
		ConsumerSiteID:       &siteID,
		IsPortableToPlaylist: true,
	}
	created, err := r.playlists.GetOrCreateLTI(ctx, tx, playlist)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get or create playlist")
	}
	if created {
		r.logger.Info("created lti playlist",
			zap.String("playlist_id", playlist.ID),
			zap.String("context_id", contextID),
			zap.String("consumer_site", launch.ConsumerSite.Domain),
		)
	}
	return playlist, nil
}

func (r *LtiResolver) duplicate(ctx context.Context, tx sqlx.ExtContext, launch models.LaunchContext, ltiID string, source models.ResourceCandidate) (*models.Resource, error) {
	playlist, err := r.launchPlaylist(ctx, tx, launch)
	if err != nil {
		return nil, err
	}
	sourceID := source.ID
	duplicate := &models.Resource{
		Kind:             launch.Kind,
		PlaylistID:       playlist.ID,
		LTIID:            ltiID,
		Title:            source.Title,
		Description:      source.Description,
		UploadState:      source.UploadState,
		UploadedOn:       source.UploadedOn,
		DuplicatedFromID: &sourceID,
	}
	if err := r.resources.Create(ctx, tx, duplicate); err != nil {
		return nil, r.wrapCreate(err, "failed to duplicate resource")
	}
	r.logger.Info("duplicated resource",
		zap.String("kind", string(launch.Kind)),
		zap.String("resource_id", duplicate.ID),
		zap.String("duplicated_from", sourceID),
		zap.String("playlist_id", playlist.ID),
	)
	return duplicate, nil
}

func (r *LtiResolver) create(ctx context.Context, tx sqlx.ExtContext, launch models.LaunchContext, ltiID string) (*models.Resource, error) {
	playlist, err := r.launchPlaylist(ctx, tx, launch)
	if err != nil {
		return nil, err
	}
	resource := &models.Resource{
		Kind:        launch.Kind,
		PlaylistID:  playlist.ID,
		LTIID:       ltiID,
		Title:       launch.ResourceTitle,
		UploadState: models.UploadPending,
	}
	if err := r.resources.Create(ctx, tx, resource); err != nil {
		return nil, r.wrapCreate(err, "failed to create resource")
	}
	r.logger.Info("created resource",
		zap.String("kind", string(launch.Kind)),
		zap.String("resource_id", resource.ID),
		zap.String("playlist_id", playlist.ID),
	)
	return resource, nil
}

// wrapCreate keeps unique violations recognisable so the caller can fall back
// to the row a concurrent launch inserted.
func (r *LtiResolver) wrapCreate(err error, message string) error {
	if database.IsUniqueViolation(err) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (r *LtiResolver) concurrentWinner(ctx context.Context, launch models.LaunchContext, ltiID string) (*models.Resource, error) {
	resource, err := r.resources.FindInCourse(ctx, nil, launch.Kind, ltiID, launch.ContextID, launch.ConsumerSite.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load concurrently created resource")
	}
	r.metrics.RecordResolution(launch.Kind, OutcomeExactMatch)
	return resource, nil
}
