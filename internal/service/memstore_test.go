package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/marsha-lti/internal/models"
	"github.com/noah-isme/marsha-lti/internal/repository"
)

// memState is the whole fake database. Rows are stored by value so a shallow
// copy of every collection is a full snapshot.
type memState struct {
	playlists        map[string]models.Playlist
	portabilities    []models.PlaylistPortability
	resources        []models.Resource
	seq              int64
	users            []models.User
	identities       []models.SocialIdentity
	orgAccesses      []models.OrganizationAccess
	siteAccesses     []models.ConsumerSiteAccess
	playlistAccesses []models.PlaylistAccess
	associations     []models.LtiUserAssociation
	passports        []models.LtiPassport
	requests         []models.PortabilityRequest
	sites            map[string]models.ConsumerSite
	organizations    map[string]models.Organization
}

func (s memState) clone() memState {
	c := s
	c.playlists = make(map[string]models.Playlist, len(s.playlists))
	for k, v := range s.playlists {
		c.playlists[k] = v
	}
	c.sites = make(map[string]models.ConsumerSite, len(s.sites))
	for k, v := range s.sites {
		c.sites[k] = v
	}
	c.organizations = make(map[string]models.Organization, len(s.organizations))
	for k, v := range s.organizations {
		c.organizations[k] = v
	}
	c.portabilities = append([]models.PlaylistPortability(nil), s.portabilities...)
	c.resources = append([]models.Resource(nil), s.resources...)
	c.users = append([]models.User(nil), s.users...)
	c.identities = append([]models.SocialIdentity(nil), s.identities...)
	c.orgAccesses = append([]models.OrganizationAccess(nil), s.orgAccesses...)
	c.siteAccesses = append([]models.ConsumerSiteAccess(nil), s.siteAccesses...)
	c.playlistAccesses = append([]models.PlaylistAccess(nil), s.playlistAccesses...)
	c.associations = append([]models.LtiUserAssociation(nil), s.associations...)
	c.passports = append([]models.LtiPassport(nil), s.passports...)
	c.requests = append([]models.PortabilityRequest(nil), s.requests...)
	return c
}

type memStore struct {
	state     memState
	commits   int
	rollbacks int
	nextID    int
	// failOn makes the named operation return an error once.
	failOn string
	// raceWinner is inserted as if committed by a concurrent launch, and
	// the next resource insert fails with a unique violation.
	raceWinner *models.Resource
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		playlists:     map[string]models.Playlist{},
		sites:         map[string]models.ConsumerSite{},
		organizations: map[string]models.Organization{},
	}}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) fail(op string) error {
	if m.failOn == op {
		m.failOn = ""
		return fmt.Errorf("%s: injected failure", op)
	}
	return nil
}

// memTx embeds a nil ExtContext; repositories backed by memStore never
// issue SQL through it.
type memTx struct {
	sqlx.ExtContext
	store    *memStore
	snapshot memState
	done     bool
}

func (m *memStore) Begin(ctx context.Context) (repository.Tx, error) {
	if err := m.fail("begin"); err != nil {
		return nil, err
	}
	return &memTx{store: m, snapshot: m.state.clone()}, nil
}

func (t *memTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.store.commits++
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.store.state = t.snapshot
	t.store.rollbacks++
	return nil
}

// fixtures

func (m *memStore) addSite(id, domain string) models.ConsumerSite {
	site := models.ConsumerSite{ID: id, Name: domain, Domain: domain}
	m.state.sites[id] = site
	return site
}

func (m *memStore) addPlaylist(p models.Playlist) models.Playlist {
	if p.ID == "" {
		p.ID = m.id("pl")
	}
	m.state.playlists[p.ID] = p
	return p
}

func (m *memStore) addResource(r models.Resource) models.Resource {
	if r.ID == "" {
		r.ID = m.id("res")
	}
	m.state.seq++
	r.Seq = m.state.seq
	m.state.resources = append(m.state.resources, r)
	return r
}

func (m *memStore) addUser(u models.User) *models.User {
	if u.ID == "" {
		u.ID = m.id("user")
	}
	m.state.users = append(m.state.users, u)
	return &u
}

func (m *memStore) addIdentity(userID, provider, uid string, createdAt time.Time) models.SocialIdentity {
	identity := models.SocialIdentity{ID: m.id("sid"), UserID: userID, Provider: provider, UID: uid, CreatedAt: createdAt, ModifiedAt: createdAt}
	m.state.identities = append(m.state.identities, identity)
	return identity
}

func (m *memStore) user(id string) (models.User, bool) {
	for _, u := range m.state.users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

func (m *memStore) playlistFor(siteID, ltiID string) (models.Playlist, bool) {
	for _, p := range m.state.playlists {
		if p.DeletedAt == nil && p.ConsumerSiteID != nil && *p.ConsumerSiteID == siteID && p.LTIID != nil && *p.LTIID == ltiID {
			return p, true
		}
	}
	return models.Playlist{}, false
}

// memPlaylists

type memPlaylists struct{ *memStore }

func (m memPlaylists) FindByID(ctx context.Context, id string) (*models.Playlist, error) {
	p, ok := m.state.playlists[id]
	if !ok || p.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m memPlaylists) FindByLTI(ctx context.Context, exec sqlx.ExtContext, consumerSiteID, ltiID string) (*models.Playlist, error) {
	p, ok := m.playlistFor(consumerSiteID, ltiID)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m memPlaylists) GetOrCreateLTI(ctx context.Context, exec sqlx.ExtContext, playlist *models.Playlist) (bool, error) {
	if err := m.fail("playlist"); err != nil {
		return false, err
	}
	if existing, ok := m.playlistFor(*playlist.ConsumerSiteID, *playlist.LTIID); ok {
		*playlist = existing
		return false, nil
	}
	playlist.ID = m.id("pl")
	m.state.playlists[playlist.ID] = *playlist
	return true, nil
}

func (m memPlaylists) ListPortableSources(ctx context.Context, exec sqlx.ExtContext, targetPlaylistID string) ([]string, error) {
	var sources []string
	for _, edge := range m.state.portabilities {
		if edge.TargetPlaylistID == targetPlaylistID {
			sources = append(sources, edge.SourcePlaylistID)
		}
	}
	return sources, nil
}

func (m memPlaylists) CreatePortability(ctx context.Context, exec sqlx.ExtContext, portability *models.PlaylistPortability) error {
	for _, edge := range m.state.portabilities {
		if edge.SourcePlaylistID == portability.SourcePlaylistID && edge.TargetPlaylistID == portability.TargetPlaylistID {
			return nil
		}
	}
	portability.ID = m.id("port")
	m.state.portabilities = append(m.state.portabilities, *portability)
	return nil
}

// memResources

type memResources struct{ *memStore }

func (m memResources) FindByID(ctx context.Context, id string) (*models.Resource, error) {
	for _, r := range m.state.resources {
		if r.ID == id && r.DeletedAt == nil {
			r := r
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memResources) FindInCourse(ctx context.Context, exec sqlx.ExtContext, kind models.ResourceKind, ltiID, contextID, consumerSiteID string) (*models.Resource, error) {
	playlist, ok := m.playlistFor(consumerSiteID, contextID)
	if !ok {
		return nil, sql.ErrNoRows
	}
	var matches []models.ResourceCandidate
	for _, r := range m.state.resources {
		if r.Kind == kind && r.LTIID == ltiID && r.PlaylistID == playlist.ID && r.DeletedAt == nil {
			matches = append(matches, models.ResourceCandidate{Resource: r})
		}
	}
	best, ok := models.MostAuthoritative(matches)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &best.Resource, nil
}

func (m memResources) ListCandidates(ctx context.Context, exec sqlx.ExtContext, kind models.ResourceKind, ltiID string) ([]models.ResourceCandidate, error) {
	var candidates []models.ResourceCandidate
	for _, r := range m.state.resources {
		if r.Kind != kind || r.LTIID != ltiID || r.DeletedAt != nil {
			continue
		}
		p, ok := m.state.playlists[r.PlaylistID]
		if !ok || p.DeletedAt != nil {
			continue
		}
		candidates = append(candidates, models.ResourceCandidate{
			Resource:                 r,
			PlaylistLTIID:            p.LTIID,
			PlaylistConsumerSiteID:   p.ConsumerSiteID,
			PlaylistOrganizationID:   p.OrganizationID,
			IsPortableToPlaylist:     p.IsPortableToPlaylist,
			IsPortableToConsumerSite: p.IsPortableToConsumerSite,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return models.LatestUploadFirst(candidates[i], candidates[j]) })
	return candidates, nil
}

func (m memResources) Create(ctx context.Context, exec sqlx.ExtContext, resource *models.Resource) error {
	if m.raceWinner != nil {
		winner := *m.raceWinner
		m.raceWinner = nil
		if tx, ok := exec.(*memTx); ok {
			m.state.seq++
			winner.Seq = m.state.seq
			tx.snapshot.resources = append(tx.snapshot.resources, winner)
			tx.snapshot.seq = m.state.seq
			if _, exists := tx.snapshot.playlists[winner.PlaylistID]; !exists {
				tx.snapshot.playlists[winner.PlaylistID] = m.state.playlists[winner.PlaylistID]
			}
		}
		return fmt.Errorf("create resource: %w", &pq.Error{Code: "23505"})
	}
	for _, r := range m.state.resources {
		if r.Kind == resource.Kind && r.PlaylistID == resource.PlaylistID && r.LTIID == resource.LTIID && r.DeletedAt == nil {
			return fmt.Errorf("create resource: %w", &pq.Error{Code: "23505"})
		}
	}
	if resource.ID == "" {
		resource.ID = m.id("res")
	}
	m.state.seq++
	resource.Seq = m.state.seq
	m.state.resources = append(m.state.resources, *resource)
	return nil
}

// memUsers

type memUsers struct{ *memStore }

func (m memUsers) ListDuplicateEmails(ctx context.Context) ([]string, error) {
	counts := map[string]int{}
	for _, u := range m.state.users {
		if u.Email != nil && *u.Email != "" {
			counts[*u.Email]++
		}
	}
	var emails []string
	for email, n := range counts {
		if n > 1 {
			emails = append(emails, email)
		}
	}
	sort.Strings(emails)
	return emails, nil
}

func (m memUsers) ListByEmail(ctx context.Context, exec sqlx.ExtContext, email string) ([]models.User, error) {
	var users []models.User
	for _, u := range m.state.users {
		if u.Email != nil && *u.Email == email {
			users = append(users, u)
		}
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].DateJoined.Before(users[j].DateJoined) })
	return users, nil
}

func (m memUsers) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if err := m.fail("delete_user"); err != nil {
		return err
	}
	for i, u := range m.state.users {
		if u.ID != id {
			continue
		}
		m.state.users = append(m.state.users[:i:i], m.state.users[i+1:]...)
		m.cascadeUser(id)
		return nil
	}
	return sql.ErrNoRows
}

func (m *memStore) cascadeUser(id string) {
	identities := m.state.identities[:0:0]
	for _, s := range m.state.identities {
		if s.UserID != id {
			identities = append(identities, s)
		}
	}
	m.state.identities = identities
	orgs := m.state.orgAccesses[:0:0]
	for _, a := range m.state.orgAccesses {
		if a.UserID != id {
			orgs = append(orgs, a)
		}
	}
	m.state.orgAccesses = orgs
	sites := m.state.siteAccesses[:0:0]
	for _, a := range m.state.siteAccesses {
		if a.UserID != id {
			sites = append(sites, a)
		}
	}
	m.state.siteAccesses = sites
	playlists := m.state.playlistAccesses[:0:0]
	for _, a := range m.state.playlistAccesses {
		if a.UserID != id {
			playlists = append(playlists, a)
		}
	}
	m.state.playlistAccesses = playlists
	associations := m.state.associations[:0:0]
	for _, a := range m.state.associations {
		if a.UserID != id {
			associations = append(associations, a)
		}
	}
	m.state.associations = associations
}

// memIdentities

type memIdentities struct{ *memStore }

func (m memIdentities) ListByUser(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.SocialIdentity, error) {
	var identities []models.SocialIdentity
	for _, s := range m.state.identities {
		if s.UserID == userID {
			identities = append(identities, s)
		}
	}
	sort.SliceStable(identities, func(i, j int) bool { return identities[i].CreatedAt.Before(identities[j].CreatedAt) })
	return identities, nil
}

func (m memIdentities) Reassign(ctx context.Context, exec sqlx.ExtContext, identityID, userID string) error {
	for i := range m.state.identities {
		if m.state.identities[i].ID == identityID {
			m.state.identities[i].UserID = userID
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m memIdentities) Delete(ctx context.Context, exec sqlx.ExtContext, identityID string) error {
	for i, s := range m.state.identities {
		if s.ID == identityID {
			m.state.identities = append(m.state.identities[:i:i], m.state.identities[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

// memRelations

type memRelations struct{ *memStore }

func (m memRelations) ListOrganizationAccesses(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.OrganizationAccess, error) {
	var out []models.OrganizationAccess
	for _, a := range m.state.orgAccesses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m memRelations) MoveOrganizationAccesses(ctx context.Context, exec sqlx.ExtContext, fromUserID, toUserID string) ([]models.OrganizationAccess, error) {
	if err := m.fail("move_org"); err != nil {
		return nil, err
	}
	held := map[string]bool{}
	for _, a := range m.state.orgAccesses {
		if a.UserID == toUserID {
			held[a.OrganizationID] = true
		}
	}
	var moved []models.OrganizationAccess
	for i, a := range m.state.orgAccesses {
		if a.UserID == fromUserID && !held[a.OrganizationID] {
			m.state.orgAccesses[i].UserID = toUserID
			moved = append(moved, m.state.orgAccesses[i])
		}
	}
	return moved, nil
}

func (m memRelations) ListConsumerSiteAccesses(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.ConsumerSiteAccess, error) {
	var out []models.ConsumerSiteAccess
	for _, a := range m.state.siteAccesses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m memRelations) MoveConsumerSiteAccesses(ctx context.Context, exec sqlx.ExtContext, fromUserID, toUserID string) ([]models.ConsumerSiteAccess, error) {
	held := map[string]bool{}
	for _, a := range m.state.siteAccesses {
		if a.UserID == toUserID {
			held[a.ConsumerSiteID] = true
		}
	}
	var moved []models.ConsumerSiteAccess
	for i, a := range m.state.siteAccesses {
		if a.UserID == fromUserID && !held[a.ConsumerSiteID] {
			m.state.siteAccesses[i].UserID = toUserID
			moved = append(moved, m.state.siteAccesses[i])
		}
	}
	return moved, nil
}

func (m memRelations) ListPlaylistAccesses(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.PlaylistAccess, error) {
	var out []models.PlaylistAccess
	for _, a := range m.state.playlistAccesses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m memRelations) MovePlaylistAccesses(ctx context.Context, exec sqlx.ExtContext, fromUserID, toUserID string) ([]models.PlaylistAccess, error) {
	held := map[string]bool{}
	for _, a := range m.state.playlistAccesses {
		if a.UserID == toUserID {
			held[a.PlaylistID] = true
		}
	}
	var moved []models.PlaylistAccess
	for i, a := range m.state.playlistAccesses {
		if a.UserID == fromUserID && !held[a.PlaylistID] {
			m.state.playlistAccesses[i].UserID = toUserID
			moved = append(moved, m.state.playlistAccesses[i])
		}
	}
	return moved, nil
}

func (m memRelations) ListLtiAssociations(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.LtiUserAssociation, error) {
	var out []models.LtiUserAssociation
	for _, a := range m.state.associations {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m memRelations) MoveLtiAssociations(ctx context.Context, exec sqlx.ExtContext, fromUserID, toUserID string) ([]models.LtiUserAssociation, error) {
	var moved []models.LtiUserAssociation
	for i, a := range m.state.associations {
		if a.UserID == fromUserID {
			m.state.associations[i].UserID = toUserID
			moved = append(moved, m.state.associations[i])
		}
	}
	return moved, nil
}

func (m memRelations) ReassignOwned(ctx context.Context, exec sqlx.ExtContext, relation repository.OwnedRelation, fromUserID, toUserID string) ([]repository.OwnedRow, error) {
	var rows []repository.OwnedRow
	to := toUserID
	switch relation {
	case repository.OwnedPlaylists:
		for id, p := range m.state.playlists {
			if p.CreatedByID != nil && *p.CreatedByID == fromUserID {
				p.CreatedByID = &to
				m.state.playlists[id] = p
				rows = append(rows, repository.OwnedRow{ID: id, Label: p.Title})
			}
		}
	case repository.OwnedResources:
		for i, r := range m.state.resources {
			if r.CreatedByID != nil && *r.CreatedByID == fromUserID {
				m.state.resources[i].CreatedByID = &to
				rows = append(rows, repository.OwnedRow{ID: r.ID, Label: r.Title})
			}
		}
	case repository.OwnedPassports:
		for i, p := range m.state.passports {
			if p.CreatedByID != nil && *p.CreatedByID == fromUserID {
				m.state.passports[i].CreatedByID = &to
				rows = append(rows, repository.OwnedRow{ID: p.ID, Label: p.OAuthConsumerKey})
			}
		}
	case repository.OwnedPortabilityRequests:
		for i, r := range m.state.requests {
			if r.FromUserID != nil && *r.FromUserID == fromUserID {
				m.state.requests[i].FromUserID = &to
				rows = append(rows, repository.OwnedRow{ID: r.ID, Label: r.ID})
			}
		}
	case repository.UpdatedPortabilityRequests:
		for i, r := range m.state.requests {
			if r.UpdatedByUserID != nil && *r.UpdatedByUserID == fromUserID {
				m.state.requests[i].UpdatedByUserID = &to
				rows = append(rows, repository.OwnedRow{ID: r.ID, Label: r.ID})
			}
		}
	default:
		return nil, fmt.Errorf("unknown owned relation %q", relation)
	}
	return rows, nil
}

// memRequests

type memRequests struct{ *memStore }

func (m memRequests) Create(ctx context.Context, request *models.PortabilityRequest) error {
	for _, r := range m.state.requests {
		if r.State == models.PortabilityPending && r.ForPlaylistID == request.ForPlaylistID && r.FromPlaylistID == request.FromPlaylistID {
			return fmt.Errorf("create portability request: %w", &pq.Error{Code: "23505"})
		}
	}
	if request.ID == "" {
		request.ID = m.id("req")
	}
	m.state.requests = append(m.state.requests, *request)
	return nil
}

func (m memRequests) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PortabilityRequest, error) {
	for _, r := range m.state.requests {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memRequests) UpdateState(ctx context.Context, exec sqlx.ExtContext, request *models.PortabilityRequest) error {
	for i, r := range m.state.requests {
		if r.ID == request.ID && r.State == models.PortabilityPending {
			m.state.requests[i] = *request
			return nil
		}
	}
	return sql.ErrNoRows
}
