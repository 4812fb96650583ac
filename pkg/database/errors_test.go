package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("create association: %w", &pq.Error{Code: "23505", Constraint: "lti_user_associations_site_user_key"})
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsForeignKeyViolation(err))
	assert.Equal(t, "lti_user_associations_site_user_key", ConstraintName(err))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.Empty(t, ConstraintName(errors.New("boom")))
}
