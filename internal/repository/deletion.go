package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marsha-lti/internal/models"
)

// deleteByID removes the row of table identified by id according to policy.
// Soft deletion only touches live rows, so deleting twice yields sql.ErrNoRows.
func deleteByID(ctx context.Context, exec sqlx.ExecerContext, table string, policy models.DeletionPolicy, id string) error {
	var (
		result sql.Result
		err    error
	)
	switch policy {
	case models.DeletionSoft:
		query := fmt.Sprintf(`UPDATE %s SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, table)
		result, err = exec.ExecContext(ctx, query, id, time.Now().UTC())
	default:
		query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table)
		result, err = exec.ExecContext(ctx, query, id)
	}
	if err != nil {
		return fmt.Errorf("%s delete %s: %w", policy, table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", table, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
