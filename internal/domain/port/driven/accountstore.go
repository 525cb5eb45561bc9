package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

// ErrAccountNotFound is returned when an account ID does not exist.
var ErrAccountNotFound = errors.New("account not found")

// ErrEncryptionKeyNotSet is returned by stores that encrypt at rest when
// DATAWIPE_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set DATAWIPE_SECRET_KEY")

// AccountStore defines the driven port for classified account persistence.
// Secrets cross this boundary as plaintext; the adapter encrypts them at rest.
type AccountStore interface {
	// Upsert inserts the account, or updates the existing row with the same
	// site URL and identity. It returns the stored account with its ID set.
	Upsert(ctx context.Context, account model.Account) (model.Account, error)

	// UpsertAll upserts every account atomically: on error nothing is stored.
	UpsertAll(ctx context.Context, accounts []model.Account) ([]model.Account, error)

	// Get returns the account or ErrAccountNotFound.
	Get(ctx context.Context, id int64) (model.Account, error)

	ListAll(ctx context.Context) ([]model.Account, error)
	UpdateStatus(ctx context.Context, id int64, status model.AccountStatus) error

	// UpdateClassification overwrites the category, confidence, reason, risk
	// level, sensitivity and priority of the account with account.ID.
	UpdateClassification(ctx context.Context, account model.Account) error
}
