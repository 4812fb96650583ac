package service

import (
	"context"

	"github.com/noah-isme/marsha-lti/internal/repository"
)

type txBeginner interface {
	Begin(ctx context.Context) (repository.Tx, error)
}
