package driven

import (
	"context"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

// Navigator drives a site's own account-deletion flow. Calls are slow and
// human-paced, and flaky sites are expected: an unsuccessful attempt is
// reported through the outcome, while the error return is reserved for
// faults in the navigator itself.
type Navigator interface {
	// Supports reports whether the navigator knows the deletion flow of the
	// site on its own, without a deletion URL from enrichment.
	Supports(siteURL string) bool

	AttemptDeletion(ctx context.Context, account model.Account, hints model.SiteMetadata) (model.DeletionOutcome, error)
}
