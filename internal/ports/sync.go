package ports

import (
	"context"

	"github.com/groovy/replicasync/internal/contracts"
)

// SyncSource reads an owner service's sync endpoints.
type SyncSource interface {
	FetchPage(ctx context.Context, resource string, query contracts.SyncQuery) (contracts.SyncPage, error)
	FetchActiveIDs(ctx context.Context, resource string) ([]string, error)
}
