package models

// DeletionPolicy states how rows of an entity are removed.
type DeletionPolicy int

const (
	// DeletionHard removes the row.
	DeletionHard DeletionPolicy = iota
	// DeletionSoft stamps deleted_at and keeps the row.
	DeletionSoft
)

func (p DeletionPolicy) String() string {
	switch p {
	case DeletionSoft:
		return "soft"
	default:
		return "hard"
	}
}

// Deletion policies per entity. Through tables are always hard deleted.
var (
	OrganizationDeletion        = DeletionSoft
	ConsumerSiteDeletion        = DeletionSoft
	PlaylistDeletion            = DeletionSoft
	ResourceDeletion            = DeletionSoft
	UserDeletion                = DeletionHard
	SocialIdentityDeletion      = DeletionHard
	OrganizationAccessDeletion  = DeletionHard
	ConsumerSiteAccessDeletion  = DeletionHard
	PlaylistAccessDeletion      = DeletionHard
	LtiAssociationDeletion      = DeletionHard
	PlaylistPortabilityDeletion = DeletionHard
	LtiPassportDeletion         = DeletionHard
)
