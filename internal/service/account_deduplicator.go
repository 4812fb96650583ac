package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/marsha-lti/internal/models"
	"github.com/noah-isme/marsha-lti/internal/repository"
	appErrors "github.com/noah-isme/marsha-lti/pkg/errors"
)

type dedupeUserStore interface {
	ListDuplicateEmails(ctx context.Context) ([]string, error)
	ListByEmail(ctx context.Context, exec sqlx.ExtContext, email string) ([]models.User, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type dedupeIdentityStore interface {
	ListByUser(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.SocialIdentity, error)
	Reassign(ctx context.Context, exec sqlx.ExtContext, identityID, userID string) error
	Delete(ctx context.Context, exec sqlx.ExtContext, identityID string) error
}

type dedupeRelationStore interface {
	ListOrganizationAccesses(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.OrganizationAccess, error)
	MoveOrganizationAccesses(ctx context.Context, exec sqlx.ExtContext, fromUserID, toUserID string) ([]models.OrganizationAccess, error)
	ListConsumerSiteAccesses(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.ConsumerSiteAccess, error)
	MoveConsumerSiteAccesses(ctx context.Context, exec sqlx.ExtContext, fromUserID, toUserID string) ([]models.ConsumerSiteAccess, error)
	ListPlaylistAccesses(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.PlaylistAccess, error)
	MovePlaylistAccesses(ctx context.Context, exec sqlx.ExtContext, fromUserID, toUserID string) ([]models.PlaylistAccess, error)
	ListLtiAssociations(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.LtiUserAssociation, error)
	MoveLtiAssociations(ctx context.Context, exec sqlx.ExtContext, fromUserID, toUserID string) ([]models.LtiUserAssociation, error)
	ReassignOwned(ctx context.Context, exec sqlx.ExtContext, relation repository.OwnedRelation, fromUserID, toUserID string) ([]repository.OwnedRow, error)
}

// MergeStrategy describes how a duplicate account was folded.
type MergeStrategy string

const (
	// StrategyNoIdentity: the duplicate had no social identity.
	StrategyNoIdentity MergeStrategy = "no_identity"
	// StrategySameAccount: the duplicate's identity supersedes one of the
	// original's after an organization uid change.
	StrategySameAccount MergeStrategy = "same_account"
	// StrategyMerge: distinct identities now share one account.
	StrategyMerge MergeStrategy = "merge"
)

var ownedCategories = []struct {
	relation repository.OwnedRelation
	category DedupeCategory
}{
	{repository.OwnedPlaylists, CategoryPlaylistsOwned},
	{repository.OwnedResources, CategoryResourcesOwned},
	{repository.OwnedPassports, CategoryPassportsOwned},
	{repository.OwnedPortabilityRequests, CategoryPortabilityRequested},
	{repository.UpdatedPortabilityRequests, CategoryPortabilityUpdated},
}

// DedupeOptions configures an AccountDeduplicator.
type DedupeOptions struct {
	// DryRun runs every statement inside transactions that are always
	// rolled back.
	DryRun bool
}

// AccountDeduplicator merges user accounts sharing an email into one.
type AccountDeduplicator struct {
	tx         txBeginner
	users      dedupeUserStore
	identities dedupeIdentityStore
	relations  dedupeRelationStore
	metrics    *MetricsService
	logger     *zap.Logger
	dryRun     bool
}

// NewAccountDeduplicator constructs the deduplicator.
func NewAccountDeduplicator(
	tx txBeginner,
	users dedupeUserStore,
	identities dedupeIdentityStore,
	relations dedupeRelationStore,
	metrics *MetricsService,
	logger *zap.Logger,
	opts DedupeOptions,
) *AccountDeduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountDeduplicator{
		tx:         tx,
		users:      users,
		identities: identities,
		relations:  relations,
		metrics:    metrics,
		logger:     logger,
		dryRun:     opts.DryRun,
	}
}

// ParseSocialIdentity splits the identity uid into organization uid and
// account email. A nil identity yields an empty SocialUID.
func ParseSocialIdentity(identity *models.SocialIdentity) models.SocialUID {
	if identity == nil {
		return models.SocialUID{}
	}
	return models.ParseSocialUID(identity.UID)
}

// GetDuplicateEmails returns email alone when given, otherwise every email
// shared by more than one account.
func (d *AccountDeduplicator) GetDuplicateEmails(ctx context.Context, email string) ([]string, error) {
	if email != "" {
		return []string{email}, nil
	}
	emails, err := d.users.ListDuplicateEmails(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list duplicate emails")
	}
	return emails, nil
}

// Deduplicate folds every duplicate account of the selected emails into its
// original. A failing pair is rolled back, logged, and ends its email group;
// the batch moves on to the next email. The returned error only reports
// failures to enumerate the emails.
func (d *AccountDeduplicator) Deduplicate(ctx context.Context, email string) (*DedupeTracker, error) {
	emails, err := d.GetDuplicateEmails(ctx, email)
	if err != nil {
		return nil, err
	}

	tracker := NewDedupeTracker()
	for _, addr := range emails {
		if err := d.dedupeEmail(ctx, tracker, addr); err != nil {
			d.logger.Error("deduplication aborted for email",
				zap.String("email", addr),
				zap.Bool("dry_run", d.dryRun),
				zap.Error(err),
			)
		}
	}
	return tracker, nil
}

func (d *AccountDeduplicator) dedupeEmail(ctx context.Context, tracker *DedupeTracker, email string) (err error) {
	var groupTx repository.Tx
	if d.dryRun {
		// one transaction per group so later pairs observe earlier merges
		groupTx, err = d.tx.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin dry-run transaction: %w", err)
		}
		defer func() { _ = groupTx.Rollback() }()
	}

	users, err := d.users.ListByEmail(ctx, groupTx, email)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	if len(users) < 2 {
		d.logger.Info("no duplicate accounts", zap.String("email", email))
		return nil
	}

	original, err := d.chooseOriginal(ctx, groupTx, users)
	if err != nil {
		return err
	}
	tracker.StartEmail(email)
	d.logger.Info("deduplicating accounts",
		zap.String("email", email),
		zap.String("original", original.Username),
		zap.Int("duplicates", len(users)-1),
		zap.Bool("dry_run", d.dryRun),
	)

	for i := range users {
		duplicate := &users[i]
		if duplicate.ID == original.ID {
			continue
		}
		if _, err := d.processInTx(ctx, groupTx, tracker, original, duplicate); err != nil {
			return fmt.Errorf("merge %s into %s: %w", duplicate.Username, original.Username, err)
		}
	}
	return nil
}

// chooseOriginal picks the account holding the earliest-created social
// identity, falling back to the earliest account.
func (d *AccountDeduplicator) chooseOriginal(ctx context.Context, exec sqlx.ExtContext, users []models.User) (*models.User, error) {
	var original *models.User
	var earliest models.SocialIdentity
	for i := range users {
		identities, err := d.identities.ListByUser(ctx, exec, users[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list identities of %s: %w", users[i].Username, err)
		}
		if len(identities) == 0 {
			continue
		}
		first := identities[0]
		if original == nil || first.CreatedAt.Before(earliest.CreatedAt) {
			original = &users[i]
			earliest = first
		}
	}
	if original == nil {
		original = &users[0]
		d.logger.Warn("no account has a social identity, keeping the earliest account",
			zap.String("email", stringValue(original.Email)),
			zap.String("original", original.Username),
		)
	}
	return original, nil
}

// ProcessDuplicateUser folds duplicate into original inside its own
// transaction, rolled back in dry-run mode.
func (d *AccountDeduplicator) ProcessDuplicateUser(ctx context.Context, tracker *DedupeTracker, original, duplicate *models.User) (MergeStrategy, error) {
	if original == nil || duplicate == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "original and duplicate are required")
	}
	if original.ID == duplicate.ID {
		return "", appErrors.Clone(appErrors.ErrValidation, "an account cannot be merged into itself")
	}
	if tracker == nil {
		tracker = NewDedupeTracker()
	}
	if len(tracker.Emails()) == 0 {
		tracker.StartEmail(stringValue(original.Email))
	}
	return d.processInTx(ctx, nil, tracker, original, duplicate)
}

func (d *AccountDeduplicator) processInTx(ctx context.Context, groupTx repository.Tx, tracker *DedupeTracker, original, duplicate *models.User) (MergeStrategy, error) {
	checkpoint := tracker.Checkpoint()

	tx := groupTx
	if tx == nil {
		var err error
		tx, err = d.tx.Begin(ctx)
		if err != nil {
			return "", fmt.Errorf("begin pair transaction: %w", err)
		}
	}

	strategy, transfers, err := d.processPair(ctx, tx, tracker, original, duplicate)
	if err == nil && groupTx == nil {
		if d.dryRun {
			err = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}
	if err != nil {
		if groupTx == nil {
			_ = tx.Rollback()
		}
		tracker.Restore(checkpoint)
		d.metrics.RecordDedupePair(string(strategy), "failed")
		return strategy, err
	}

	if !d.dryRun {
		d.metrics.RecordDedupePair(string(strategy), "merged")
		for category, n := range transfers {
			d.metrics.RecordDedupeTransfer(string(category), n)
		}
	}
	d.logger.Info("merged duplicate account",
		zap.String("strategy", string(strategy)),
		zap.String("original", original.Username),
		zap.String("duplicate", duplicate.Username),
		zap.Bool("dry_run", d.dryRun),
	)
	return strategy, nil
}

func (d *AccountDeduplicator) processPair(ctx context.Context, tx sqlx.ExtContext, tracker *DedupeTracker, original, duplicate *models.User) (MergeStrategy, map[DedupeCategory]int, error) {
	strategy, err := d.transferIdentities(ctx, tx, tracker, original, duplicate)
	if err != nil {
		return strategy, nil, err
	}

	transfers, err := d.transferRelations(ctx, tx, tracker, original, duplicate)
	if err != nil {
		return strategy, nil, err
	}

	if err := d.users.Delete(ctx, tx, duplicate.ID); err != nil {
		return strategy, nil, fmt.Errorf("delete duplicate account: %w", err)
	}
	tracker.RecordUserDeleted(duplicate)
	return strategy, transfers, nil
}

func (d *AccountDeduplicator) transferIdentities(ctx context.Context, tx sqlx.ExtContext, tracker *DedupeTracker, original, duplicate *models.User) (MergeStrategy, error) {
	incoming, err := d.identities.ListByUser(ctx, tx, duplicate.ID)
	if err != nil {
		return "", fmt.Errorf("list duplicate identities: %w", err)
	}
	if len(incoming) == 0 {
		return StrategyNoIdentity, nil
	}
	kept, err := d.identities.ListByUser(ctx, tx, original.ID)
	if err != nil {
		return "", fmt.Errorf("list original identities: %w", err)
	}

	strategy := StrategyMerge
	for _, identity := range incoming {
		uid := ParseSocialIdentity(&identity)
		if idx := previousGeneration(kept, identity, uid); idx >= 0 {
			previous := kept[idx]
			kept = append(kept[:idx], kept[idx+1:]...)
			if err := d.identities.Delete(ctx, tx, previous.ID); err != nil {
				return strategy, fmt.Errorf("delete superseded identity: %w", err)
			}
			tracker.RecordIdentityDeleted(previous)
			if err := d.identities.Reassign(ctx, tx, identity.ID, original.ID); err != nil {
				return strategy, fmt.Errorf("migrate identity: %w", err)
			}
			tracker.RecordUIDMigration(ParseSocialIdentity(&previous).OrgUIDValue(), uid.OrgUIDValue())
			strategy = StrategySameAccount
			continue
		}
		if err := d.identities.Reassign(ctx, tx, identity.ID, original.ID); err != nil {
			return strategy, fmt.Errorf("attach identity: %w", err)
		}
		tracker.RecordIdentityMerged(identity, original)
	}
	return strategy, nil
}

// previousGeneration finds the identity of the same provider that uid
// supersedes, or -1.
func previousGeneration(kept []models.SocialIdentity, identity models.SocialIdentity, uid models.SocialUID) int {
	for i, candidate := range kept {
		if candidate.Provider != identity.Provider {
			continue
		}
		if ParseSocialIdentity(&candidate).SameAccountAs(uid) {
			return i
		}
	}
	return -1
}

func (d *AccountDeduplicator) transferRelations(ctx context.Context, tx sqlx.ExtContext, tracker *DedupeTracker, original, duplicate *models.User) (map[DedupeCategory]int, error) {
	transfers := make(map[DedupeCategory]int)

	if tracker.NeedsSeed(CategoryOrganizationAccesses, original.ID) {
		existing, err := d.relations.ListOrganizationAccesses(ctx, tx, original.ID)
		if err != nil {
			return nil, fmt.Errorf("list organization accesses: %w", err)
		}
		tracker.GetOrInitOrganizationAccesses(original, existing)
	}
	orgAccesses, err := d.relations.MoveOrganizationAccesses(ctx, tx, duplicate.ID, original.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orgAccesses, func(i, j int) bool {
		return createdBefore(orgAccesses[i].CreatedAt, orgAccesses[j].CreatedAt, orgAccesses[i].ID, orgAccesses[j].ID)
	})
	rows := make([]TrackedRelation, 0, len(orgAccesses))
	for _, access := range orgAccesses {
		rows = append(rows, TrackedRelation{ID: access.ID, Label: access.OrganizationName})
	}
	tracker.AddRelations(CategoryOrganizationAccesses, original, rows)
	transfers[CategoryOrganizationAccesses] = len(orgAccesses)

	if tracker.NeedsSeed(CategoryConsumerSiteAccesses, original.ID) {
		existing, err := d.relations.ListConsumerSiteAccesses(ctx, tx, original.ID)
		if err != nil {
			return nil, fmt.Errorf("list consumer site accesses: %w", err)
		}
		tracker.GetOrInitConsumerSiteAccesses(original, existing)
	}
	siteAccesses, err := d.relations.MoveConsumerSiteAccesses(ctx, tx, duplicate.ID, original.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(siteAccesses, func(i, j int) bool {
		return createdBefore(siteAccesses[i].CreatedAt, siteAccesses[j].CreatedAt, siteAccesses[i].ID, siteAccesses[j].ID)
	})
	rows = make([]TrackedRelation, 0, len(siteAccesses))
	for _, access := range siteAccesses {
		rows = append(rows, TrackedRelation{ID: access.ID, Label: access.ConsumerSiteName})
	}
	tracker.AddRelations(CategoryConsumerSiteAccesses, original, rows)
	transfers[CategoryConsumerSiteAccesses] = len(siteAccesses)

	if tracker.NeedsSeed(CategoryPlaylistAccesses, original.ID) {
		existing, err := d.relations.ListPlaylistAccesses(ctx, tx, original.ID)
		if err != nil {
			return nil, fmt.Errorf("list playlist accesses: %w", err)
		}
		tracker.GetOrInitPlaylistAccesses(original, existing)
	}
	playlistAccesses, err := d.relations.MovePlaylistAccesses(ctx, tx, duplicate.ID, original.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(playlistAccesses, func(i, j int) bool {
		return createdBefore(playlistAccesses[i].CreatedAt, playlistAccesses[j].CreatedAt, playlistAccesses[i].ID, playlistAccesses[j].ID)
	})
	rows = make([]TrackedRelation, 0, len(playlistAccesses))
	for _, access := range playlistAccesses {
		rows = append(rows, TrackedRelation{ID: access.ID, Label: access.PlaylistTitle})
	}
	tracker.AddRelations(CategoryPlaylistAccesses, original, rows)
	transfers[CategoryPlaylistAccesses] = len(playlistAccesses)

	if tracker.NeedsSeed(CategoryLtiAssociations, original.ID) {
		existing, err := d.relations.ListLtiAssociations(ctx, tx, original.ID)
		if err != nil {
			return nil, fmt.Errorf("list lti associations: %w", err)
		}
		tracker.GetOrInitLtiAssociations(original, existing)
	}
	associations, err := d.relations.MoveLtiAssociations(ctx, tx, duplicate.ID, original.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(associations, func(i, j int) bool {
		return createdBefore(associations[i].CreatedAt, associations[j].CreatedAt, associations[i].ID, associations[j].ID)
	})
	rows = make([]TrackedRelation, 0, len(associations))
	for _, association := range associations {
		rows = append(rows, TrackedRelation{ID: association.ID, Label: associationName(association)})
	}
	tracker.AddRelations(CategoryLtiAssociations, original, rows)
	transfers[CategoryLtiAssociations] = len(associations)

	for _, owned := range ownedCategories {
		moved, err := d.relations.ReassignOwned(ctx, tx, owned.relation, duplicate.ID, original.ID)
		if err != nil {
			return nil, err
		}
		sort.Slice(moved, func(i, j int) bool {
			if moved[i].Label != moved[j].Label {
				return moved[i].Label < moved[j].Label
			}
			return moved[i].ID < moved[j].ID
		})
		rows = make([]TrackedRelation, 0, len(moved))
		for _, row := range moved {
			rows = append(rows, TrackedRelation{ID: row.ID, Label: row.Label})
		}
		tracker.AddRelations(owned.category, original, rows)
		transfers[owned.category] = len(moved)
	}
	return transfers, nil
}

func createdBefore(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return aID < bID
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
