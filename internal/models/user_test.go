package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSocialUID(t *testing.T) {
	cases := []struct {
		uid   string
		org   string
		email *string
	}{
		{uid: "org-1:user@example.com", org: "org-1", email: strPtr("user@example.com")},
		{uid: "org-1:user:weird@example.com", org: "org-1", email: strPtr("user:weird@example.com")},
		{uid: "no-colon", org: "no-colon"},
		{uid: ":user@example.com", org: "", email: strPtr("user@example.com")},
	}
	for _, tc := range cases {
		t.Run(tc.uid, func(t *testing.T) {
			parsed := ParseSocialUID(tc.uid)
			require.NotNil(t, parsed.OrgUID)
			assert.Equal(t, tc.org, *parsed.OrgUID)
			assert.Equal(t, tc.email, parsed.Email)
			assert.Equal(t, tc.uid, parsed.String())
		})
	}
}

func TestSocialUIDSameAccountAs(t *testing.T) {
	old := ParseSocialUID("old-uid:user@test.com")
	renamed := ParseSocialUID("new-uid:user@test.com")
	other := ParseSocialUID("new-uid:other@test.com")

	assert.True(t, old.SameAccountAs(renamed))
	assert.False(t, old.SameAccountAs(old))
	assert.False(t, old.SameAccountAs(other))
	assert.False(t, SocialUID{}.SameAccountAs(renamed))
	assert.False(t, ParseSocialUID("bare").SameAccountAs(ParseSocialUID("other")))
}

func strPtr(v string) *string { return &v }
