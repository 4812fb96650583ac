package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marsha-lti/internal/dto"
	"github.com/noah-isme/marsha-lti/internal/models"
	appErrors "github.com/noah-isme/marsha-lti/pkg/errors"
)

type passportLookupMock struct {
	sites map[string]models.PassportSite
	err   error
	calls int
}

func (m *passportLookupMock) FindPassportSite(ctx context.Context, consumerKey string) (*models.PassportSite, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	site, ok := m.sites[consumerKey]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &site, nil
}

type associationLookupMock struct {
	associations map[string]string
	err          error
}

func (m *associationLookupMock) FindBySiteAndUser(ctx context.Context, consumerSiteID, ltiUserID string) (*models.LtiUserAssociation, error) {
	if m.err != nil {
		return nil, m.err
	}
	userID, ok := m.associations[consumerSiteID+"/"+ltiUserID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.LtiUserAssociation{ConsumerSiteID: consumerSiteID, LTIUserID: ltiUserID, UserID: userID}, nil
}

type resolverMock struct {
	resource *models.Resource
	err      error
	launches []models.LaunchContext
}

func (m *resolverMock) GetOrCreateResource(ctx context.Context, launch models.LaunchContext) (*models.Resource, error) {
	m.launches = append(m.launches, launch)
	return m.resource, m.err
}

type jsonCacheRepo struct {
	entries map[string][]byte
}

func (r *jsonCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := r.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *jsonCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.entries[key] = raw
	return nil
}

func (r *jsonCacheRepo) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(r.entries, key)
	}
	return nil
}

type launchFixture struct {
	svc          *LaunchService
	passports    *passportLookupMock
	associations *associationLookupMock
	resolver     *resolverMock
	tokens       *TokenService
	cache        *jsonCacheRepo
}

func newLaunchFixture(cacheEnabled bool) *launchFixture {
	f := &launchFixture{
		passports: &passportLookupMock{sites: map[string]models.PassportSite{
			"moodle-key":  {PassportID: "pp-1", OAuthConsumerKey: "moodle-key", IsEnabled: true, Site: models.ConsumerSite{ID: "site-1", Domain: "moodle.example.com"}},
			"revoked-key": {PassportID: "pp-2", OAuthConsumerKey: "revoked-key", Site: models.ConsumerSite{ID: "site-2", Domain: "old.example.com"}},
		}},
		associations: &associationLookupMock{associations: map[string]string{"site-1/lti-42": "user-42"}},
		resolver:     &resolverMock{resource: &models.Resource{ID: "res-1", PlaylistID: "pl-1", Kind: models.ResourceVideo}},
		tokens:       NewTokenService(TokenConfig{Secret: "secret", Issuer: "marsha-lti"}),
		cache:        &jsonCacheRepo{entries: map[string][]byte{}},
	}
	cache := NewCacheService(f.cache, NewMetricsService(), time.Minute, nil, cacheEnabled)
	f.svc = NewLaunchService(nil, f.passports, f.associations, f.resolver, f.tokens, cache, LaunchConfig{}, nil)
	return f
}

func launchRequest(roles string) dto.LaunchRequest {
	return dto.LaunchRequest{
		OAuthConsumerKey:  "moodle-key",
		ResourceLinkID:    "moodle.example.com-link-1",
		ResourceLinkTitle: "Week 1",
		ContextID:         "course-1",
		ContextTitle:      "Physics",
		UserID:            "lti-42",
		Roles:             roles,
	}
}

func TestLaunchServiceInstructorLaunch(t *testing.T) {
	f := newLaunchFixture(false)

	resp, err := f.svc.Launch(context.Background(), models.ResourceVideo, launchRequest("urn:lti:role:ims/lis/Instructor"))
	require.NoError(t, err)
	assert.Equal(t, dto.LaunchStateAvailable, resp.State)
	assert.True(t, resp.IsInstructor)
	require.NotNil(t, resp.UserID)
	assert.Equal(t, "user-42", *resp.UserID)

	require.Len(t, f.resolver.launches, 1)
	launch := f.resolver.launches[0]
	assert.Equal(t, "site-1", launch.ConsumerSite.ID)
	assert.Equal(t, "link-1", launch.ResourceLTIID())
	assert.Equal(t, "Week 1", launch.ResourceTitle)
	assert.True(t, launch.IsInstructor)

	claims, err := f.tokens.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "res-1", claims.ResourceID)
	assert.Equal(t, "pl-1", claims.PlaylistID)
	assert.Equal(t, "site-1", claims.ConsumerSiteID)
	assert.Equal(t, "course-1", claims.ContextID)
	assert.Equal(t, "lti-42", claims.LTIUserID)
	assert.Equal(t, "user-42", claims.UserID)
	assert.True(t, claims.Permissions.CanUpdate)
}

func TestLaunchServiceClassifiesRoles(t *testing.T) {
	cases := map[string]bool{
		"Instructor":                             true,
		"student, ADMINISTRATOR":                 true,
		"urn:lti:instrole:ims/lis/Administrator": true,
		"http://purl.imsglobal.org/vocab/lis/v2/membership#Instructor": true,
		"Learner": false,
		"urn:lti:role:ims/lis/Learner,TeachingAssistant": false,
	}
	for roles, instructor := range cases {
		t.Run(roles, func(t *testing.T) {
			f := newLaunchFixture(false)
			resp, err := f.svc.Launch(context.Background(), models.ResourceVideo, launchRequest(roles))
			require.NoError(t, err)
			assert.Equal(t, instructor, resp.IsInstructor)
			assert.Equal(t, instructor, f.resolver.launches[0].IsInstructor)
		})
	}
}

func TestLaunchServiceConfiguredInstructorRoles(t *testing.T) {
	f := newLaunchFixture(false)
	f.svc = NewLaunchService(nil, f.passports, f.associations, f.resolver, f.tokens, nil, LaunchConfig{InstructorRoles: []string{" TeachingAssistant "}}, nil)

	resp, err := f.svc.Launch(context.Background(), models.ResourceVideo, launchRequest("urn:lti:role:ims/lis/TeachingAssistant"))
	require.NoError(t, err)
	assert.True(t, resp.IsInstructor)

	resp, err = f.svc.Launch(context.Background(), models.ResourceVideo, launchRequest("Instructor"))
	require.NoError(t, err)
	assert.False(t, resp.IsInstructor)
}

func TestLaunchServiceNotAvailable(t *testing.T) {
	f := newLaunchFixture(false)
	f.resolver.resource = nil
	req := launchRequest("Learner")
	req.UserID = "lti-7"

	resp, err := f.svc.Launch(context.Background(), models.ResourceDocument, req)
	require.NoError(t, err)
	assert.Equal(t, dto.LaunchStateNotAvailable, resp.State)
	assert.Nil(t, resp.Resource)
	assert.Nil(t, resp.UserID)

	claims, err := f.tokens.Validate(resp.Token)
	require.NoError(t, err)
	assert.Empty(t, claims.ResourceID)
	assert.False(t, claims.Permissions.CanUpdate)
}

func TestLaunchServiceRejectsPassports(t *testing.T) {
	f := newLaunchFixture(false)

	req := launchRequest("Instructor")
	req.OAuthConsumerKey = "unknown"
	_, err := f.svc.Launch(context.Background(), models.ResourceVideo, req)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	req.OAuthConsumerKey = "revoked-key"
	_, err = f.svc.Launch(context.Background(), models.ResourceVideo, req)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	f.passports.err = errors.New("connection reset")
	req.OAuthConsumerKey = "moodle-key"
	_, err = f.svc.Launch(context.Background(), models.ResourceVideo, req)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Empty(t, f.resolver.launches)
}

func TestLaunchServiceCachesPassportLookups(t *testing.T) {
	f := newLaunchFixture(true)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Launch(context.Background(), models.ResourceVideo, launchRequest("Learner"))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.passports.calls)
	assert.Contains(t, f.cache.entries, "passport:moodle-key")
}

func TestLaunchServicePassportStateFollowsCacheTTL(t *testing.T) {
	f := newLaunchFixture(true)

	req := launchRequest("Learner")
	req.OAuthConsumerKey = "revoked-key"
	_, err := f.svc.Launch(context.Background(), models.ResourceVideo, req)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	assert.NotContains(t, f.cache.entries, "passport:revoked-key")

	// re-enabled passports are picked up on the next launch
	revoked := f.passports.sites["revoked-key"]
	revoked.IsEnabled = true
	f.passports.sites["revoked-key"] = revoked
	_, err = f.svc.Launch(context.Background(), models.ResourceVideo, req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.passports.calls)

	// disabling is seen once the cached entry expires
	revoked.IsEnabled = false
	f.passports.sites["revoked-key"] = revoked
	_, err = f.svc.Launch(context.Background(), models.ResourceVideo, req)
	require.NoError(t, err, "cached passport is trusted until its ttl")
	delete(f.cache.entries, "passport:revoked-key")
	_, err = f.svc.Launch(context.Background(), models.ResourceVideo, req)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	assert.Equal(t, 3, f.passports.calls)
}

func TestLaunchServiceValidatesInput(t *testing.T) {
	f := newLaunchFixture(false)

	req := launchRequest("Instructor")
	req.ContextID = ""
	_, err := f.svc.Launch(context.Background(), models.ResourceVideo, req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Launch(context.Background(), models.ResourceKind("podcast"), launchRequest("Instructor"))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, f.resolver.launches)
}

func TestLaunchServiceIgnoresAssociationFailures(t *testing.T) {
	f := newLaunchFixture(false)
	f.associations.err = errors.New("timeout")

	resp, err := f.svc.Launch(context.Background(), models.ResourceVideo, launchRequest("Instructor"))
	require.NoError(t, err)
	assert.Nil(t, resp.UserID)
}

func TestLaunchServicePropagatesResolverErrors(t *testing.T) {
	f := newLaunchFixture(false)
	f.resolver.err = appErrors.Clone(appErrors.ErrInternal, "boom")

	_, err := f.svc.Launch(context.Background(), models.ResourceVideo, launchRequest("Instructor"))
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
