package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/marsha-lti/internal/models"
	"github.com/noah-isme/marsha-lti/pkg/export"
)

// DedupeCategory is one block of the deduplication report.
type DedupeCategory string

const (
	CategoryUIDMigrations        DedupeCategory = "organization uid migrations"
	CategoryIdentitiesMerged     DedupeCategory = "social identities merged"
	CategoryOrganizationAccesses DedupeCategory = "organization accesses"
	CategoryConsumerSiteAccesses DedupeCategory = "consumer site accesses"
	CategoryPlaylistAccesses     DedupeCategory = "playlist accesses"
	CategoryLtiAssociations      DedupeCategory = "lti user associations"
	CategoryPlaylistsOwned       DedupeCategory = "playlists re-owned"
	CategoryResourcesOwned       DedupeCategory = "resources re-owned"
	CategoryPassportsOwned       DedupeCategory = "lti passports re-owned"
	CategoryPortabilityRequested DedupeCategory = "portability requests re-owned (requester)"
	CategoryPortabilityUpdated   DedupeCategory = "portability requests re-owned (actor)"
	CategoryIdentitiesDeleted    DedupeCategory = "social identities deleted"
	CategoryUsersDeleted         DedupeCategory = "user accounts deleted"
)

// DedupeCategories lists the categories in report order.
var DedupeCategories = []DedupeCategory{
	CategoryUIDMigrations,
	CategoryIdentitiesMerged,
	CategoryOrganizationAccesses,
	CategoryConsumerSiteAccesses,
	CategoryPlaylistAccesses,
	CategoryLtiAssociations,
	CategoryPlaylistsOwned,
	CategoryResourcesOwned,
	CategoryPassportsOwned,
	CategoryPortabilityRequested,
	CategoryPortabilityUpdated,
	CategoryIdentitiesDeleted,
	CategoryUsersDeleted,
}

// TrackedRelation is one relation row recorded by the tracker. ID identifies
// the row; Label is what the report shows and need not be unique.
type TrackedRelation struct {
	ID    string
	Label string
}

type trackedItem struct {
	key    string
	label  string
	seeded bool
}

// itemList keeps insertion order and ignores repeated keys.
type itemList struct {
	items []trackedItem
	index map[string]struct{}
}

func newItemList() *itemList {
	return &itemList{index: make(map[string]struct{})}
}

func (l *itemList) add(key, label string, seeded bool) {
	if _, ok := l.index[key]; ok {
		return
	}
	l.index[key] = struct{}{}
	l.items = append(l.items, trackedItem{key: key, label: label, seeded: seeded})
}

func (l *itemList) transferred() int {
	n := 0
	for _, item := range l.items {
		if !item.seeded {
			n++
		}
	}
	return n
}

func (l *itemList) clone() *itemList {
	c := &itemList{items: append([]trackedItem(nil), l.items...), index: make(map[string]struct{}, len(l.index))}
	for k := range l.index {
		c.index[k] = struct{}{}
	}
	return c
}

// emailSection holds everything recorded while one email group was merged.
type emailSection struct {
	email  string
	blocks map[DedupeCategory]*itemList
	// seeded records which (category, original user) entries were
	// initialised with the relations the user already held.
	seeded map[string]struct{}
	chains [][]string
}

func newEmailSection(email string) *emailSection {
	section := &emailSection{
		email:  email,
		blocks: make(map[DedupeCategory]*itemList, len(DedupeCategories)),
		seeded: make(map[string]struct{}),
	}
	for _, category := range DedupeCategories {
		section.blocks[category] = newItemList()
	}
	return section
}

func (s *emailSection) clone() *emailSection {
	c := &emailSection{
		email:  s.email,
		blocks: make(map[DedupeCategory]*itemList, len(s.blocks)),
		seeded: make(map[string]struct{}, len(s.seeded)),
		chains: make([][]string, len(s.chains)),
	}
	for k, v := range s.blocks {
		c.blocks[k] = v.clone()
	}
	for k := range s.seeded {
		c.seeded[k] = struct{}{}
	}
	for i, chain := range s.chains {
		c.chains[i] = append([]string(nil), chain...)
	}
	return c
}

type trackerState struct {
	sections []*emailSection
}

func (s trackerState) clone() trackerState {
	c := trackerState{sections: make([]*emailSection, len(s.sections))}
	for i, section := range s.sections {
		c.sections[i] = section.clone()
	}
	return c
}

// DedupeTracker accumulates what a deduplication batch did, one section per
// email group. It performs no I/O; the report it renders is the same for dry
// and real runs.
type DedupeTracker struct {
	state trackerState
}

// DedupeCheckpoint is an opaque tracker snapshot.
type DedupeCheckpoint struct {
	state trackerState
}

// NewDedupeTracker returns an empty tracker.
func NewDedupeTracker() *DedupeTracker {
	return &DedupeTracker{}
}

// Checkpoint captures the current state.
func (t *DedupeTracker) Checkpoint() DedupeCheckpoint {
	return DedupeCheckpoint{state: t.state.clone()}
}

// Restore discards everything recorded since cp.
func (t *DedupeTracker) Restore(cp DedupeCheckpoint) {
	t.state = cp.state.clone()
}

// StartEmail opens the section later records are filed under. Starting the
// current email again keeps its section.
func (t *DedupeTracker) StartEmail(email string) {
	if n := len(t.state.sections); n > 0 && t.state.sections[n-1].email == email {
		return
	}
	t.state.sections = append(t.state.sections, newEmailSection(email))
}

// Emails lists the email groups in processing order.
func (t *DedupeTracker) Emails() []string {
	emails := make([]string, 0, len(t.state.sections))
	for _, section := range t.state.sections {
		emails = append(emails, section.email)
	}
	return emails
}

func (t *DedupeTracker) current() *emailSection {
	if len(t.state.sections) == 0 {
		t.StartEmail("")
	}
	return t.state.sections[len(t.state.sections)-1]
}

func (t *DedupeTracker) section(email string) *emailSection {
	for _, section := range t.state.sections {
		if section.email == email {
			return section
		}
	}
	return nil
}

func labels(list *itemList) []string {
	out := make([]string, 0, len(list.items))
	for _, item := range list.items {
		out = append(out, item.label)
	}
	return out
}

// Items returns the recorded items of a category across every email, in
// processing order.
func (t *DedupeTracker) Items(category DedupeCategory) []string {
	var out []string
	for _, section := range t.state.sections {
		if list, ok := section.blocks[category]; ok {
			out = append(out, labels(list)...)
		}
	}
	return out
}

// EmailItems returns the items of a category recorded for one email.
func (t *DedupeTracker) EmailItems(email string, category DedupeCategory) []string {
	section := t.section(email)
	if section == nil {
		return nil
	}
	list, ok := section.blocks[category]
	if !ok {
		return nil
	}
	return labels(list)
}

// Count returns the number of items of a category, including relations the
// original already held.
func (t *DedupeTracker) Count(category DedupeCategory) int {
	n := 0
	for _, section := range t.state.sections {
		if list, ok := section.blocks[category]; ok {
			n += len(list.items)
		}
	}
	return n
}

// Transferred returns the number of items of a category that the batch
// changed, leaving out relations the original already held.
func (t *DedupeTracker) Transferred(category DedupeCategory) int {
	n := 0
	for _, section := range t.state.sections {
		if list, ok := section.blocks[category]; ok {
			n += list.transferred()
		}
	}
	return n
}

func seedKey(category DedupeCategory, userID string) string {
	return string(category) + "\x00" + userID
}

// NeedsSeed reports whether the original's existing relations of category
// still have to be loaded.
func (t *DedupeTracker) NeedsSeed(category DedupeCategory, userID string) bool {
	_, ok := t.current().seeded[seedKey(category, userID)]
	return !ok
}

// getOrInit returns the block for category, seeding it once per user with the
// relations the user already held.
func (t *DedupeTracker) getOrInit(category DedupeCategory, user *models.User, existing []TrackedRelation) *itemList {
	section := t.current()
	block := section.blocks[category]
	key := seedKey(category, user.ID)
	if _, ok := section.seeded[key]; !ok {
		section.seeded[key] = struct{}{}
		for _, rel := range existing {
			block.add(rel.ID, userItem(user, rel.Label), true)
		}
	}
	return block
}

func userItem(user *models.User, name string) string {
	return user.Username + ": " + name
}

// GetOrInitOrganizationAccesses seeds the organization access block.
func (t *DedupeTracker) GetOrInitOrganizationAccesses(user *models.User, existing []models.OrganizationAccess) {
	rows := make([]TrackedRelation, 0, len(existing))
	for _, access := range existing {
		rows = append(rows, TrackedRelation{ID: access.ID, Label: access.OrganizationName})
	}
	t.getOrInit(CategoryOrganizationAccesses, user, rows)
}

// GetOrInitConsumerSiteAccesses seeds the consumer site access block.
func (t *DedupeTracker) GetOrInitConsumerSiteAccesses(user *models.User, existing []models.ConsumerSiteAccess) {
	rows := make([]TrackedRelation, 0, len(existing))
	for _, access := range existing {
		rows = append(rows, TrackedRelation{ID: access.ID, Label: access.ConsumerSiteName})
	}
	t.getOrInit(CategoryConsumerSiteAccesses, user, rows)
}

// GetOrInitPlaylistAccesses seeds the playlist access block.
func (t *DedupeTracker) GetOrInitPlaylistAccesses(user *models.User, existing []models.PlaylistAccess) {
	rows := make([]TrackedRelation, 0, len(existing))
	for _, access := range existing {
		rows = append(rows, TrackedRelation{ID: access.ID, Label: access.PlaylistTitle})
	}
	t.getOrInit(CategoryPlaylistAccesses, user, rows)
}

// GetOrInitLtiAssociations seeds the LTI association block.
func (t *DedupeTracker) GetOrInitLtiAssociations(user *models.User, existing []models.LtiUserAssociation) {
	rows := make([]TrackedRelation, 0, len(existing))
	for _, association := range existing {
		rows = append(rows, TrackedRelation{ID: association.ID, Label: associationName(association)})
	}
	t.getOrInit(CategoryLtiAssociations, user, rows)
}

func associationName(a models.LtiUserAssociation) string {
	return a.ConsumerSiteName + "/" + a.LTIUserID
}

// AddRelations records rows transferred onto user under category.
func (t *DedupeTracker) AddRelations(category DedupeCategory, user *models.User, rows []TrackedRelation) {
	block := t.getOrInit(category, user, nil)
	for _, rel := range rows {
		block.add(rel.ID, userItem(user, rel.Label), false)
	}
}

// RecordUIDMigration appends newUID to the chain ending in oldUID, or starts
// a new chain.
func (t *DedupeTracker) RecordUIDMigration(oldUID, newUID string) {
	section := t.current()
	for i, chain := range section.chains {
		if chain[len(chain)-1] == oldUID {
			section.chains[i] = append(chain, newUID)
			section.rebuildChains()
			return
		}
	}
	section.chains = append(section.chains, []string{oldUID, newUID})
	section.rebuildChains()
}

func (s *emailSection) rebuildChains() {
	block := newItemList()
	for _, chain := range s.chains {
		label := strings.Join(chain, " -> ")
		block.add(chain[0], label, false)
	}
	s.blocks[CategoryUIDMigrations] = block
}

// RecordIdentityMerged records identity attached to original.
func (t *DedupeTracker) RecordIdentityMerged(identity models.SocialIdentity, original *models.User) {
	t.current().blocks[CategoryIdentitiesMerged].add(identityKey(identity),
		fmt.Sprintf("%s %s -> %s", identity.Provider, identity.UID, original.Username), false)
}

// RecordIdentityDeleted records a removed identity.
func (t *DedupeTracker) RecordIdentityDeleted(identity models.SocialIdentity) {
	t.current().blocks[CategoryIdentitiesDeleted].add(identityKey(identity), identity.Provider+" "+identity.UID, false)
}

func identityKey(identity models.SocialIdentity) string {
	if identity.ID != "" {
		return identity.ID
	}
	return identity.Provider + " " + identity.UID
}

// RecordUserDeleted records a removed account.
func (t *DedupeTracker) RecordUserDeleted(user *models.User) {
	key := user.ID
	if key == "" {
		key = user.Username
	}
	t.current().blocks[CategoryUsersDeleted].add(key, user.Username, false)
}

// Report renders the header, then one section per email with a block per
// category, then the summary of changes in category order. Relations the
// original already held are listed with a "(held)" suffix and count towards
// their block but not towards the summary.
func (t *DedupeTracker) Report() string {
	var b strings.Builder
	b.WriteString("Account deduplication report\n")
	b.WriteString("emails: ")
	if len(t.state.sections) == 0 {
		b.WriteString("none")
	} else {
		b.WriteString(strings.Join(t.Emails(), ", "))
	}
	b.WriteString("\n")

	for _, section := range t.state.sections {
		fmt.Fprintf(&b, "\n== %s ==\n", sectionTitle(section.email))
		for _, category := range DedupeCategories {
			list := section.blocks[category]
			fmt.Fprintf(&b, "%s (%d)\n", category, len(list.items))
			for _, item := range list.items {
				b.WriteString("  ")
				b.WriteString(item.label)
				if item.seeded {
					b.WriteString(" (held)")
				}
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\nsummary\n")
	for _, category := range DedupeCategories {
		fmt.Fprintf(&b, "  %s: %d\n", category, t.Transferred(category))
	}
	return b.String()
}

// ReportLines splits Report into lines for line-oriented loggers.
func (t *DedupeTracker) ReportLines() []string {
	return strings.Split(strings.TrimRight(t.Report(), "\n"), "\n")
}

func sectionTitle(email string) string {
	if email == "" {
		return "(no email)"
	}
	return email
}

// Dataset flattens the report into rows for CSV or PDF export.
func (t *DedupeTracker) Dataset() export.Dataset {
	data := export.Dataset{Title: "Account deduplication report", Headers: []string{"email", "category", "position", "item"}}
	for _, section := range t.state.sections {
		for _, category := range DedupeCategories {
			for i, item := range section.blocks[category].items {
				label := item.label
				if item.seeded {
					label += " (held)"
				}
				data.Rows = append(data.Rows, map[string]string{
					"email":    section.email,
					"category": string(category),
					"position": strconv.Itoa(i + 1),
					"item":     label,
				})
			}
		}
	}
	return data
}
