package orchestrator

import (
	"context"

	"github.com/afeezaziz/arkrelay-gateway/internal/store"
)

// CommitResult is what a successful back-end commit produces, reported in
// the session's terminal result and the outbound success event.
type CommitResult struct {
	TxID        string
	PaymentHash string
	FeeSats     int64
	// Pending marks a commit that succeeded but whose session isn't
	// terminal yet (the lightning_lift flow: an invoice was created, but
	// the session only reaches `completed` once the Lightning Coordinator's
	// settlement monitor observes payment and calls CompleteSession).
	Pending bool
}

// Committer performs step 6/7 of the orchestrator's contract for one
// session_type: produce the exact bytes to commit, submit the gathered
// signatures (or payment), and report the outcome. Implementations must be
// idempotent on SessionID (I5) — a retry after an ambiguous failure must
// check back-end status before resubmitting rather than commit twice.
//
// Kept as an interface (rather than the orchestrator importing the ARK and
// Lightning clients directly) so the Lightning Coordinator can own its
// sub-flow's extra bookkeeping (invoice creation, settlement bookkeeping)
// without an import cycle back into this package.
type Committer interface {
	Commit(ctx context.Context, session *store.Session, reserved []*store.Vtxo) (*CommitResult, error)
}
