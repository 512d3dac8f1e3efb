package domain

import "context"

// OpportunityStore persists detected opportunities.
type OpportunityStore interface {
	InsertBatch(ctx context.Context, opps []Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListByPair(ctx context.Context, pairKey string, limit int) ([]Opportunity, error)
}

// CycleStore persists monitor cycle records.
type CycleStore interface {
	Insert(ctx context.Context, cycle ScanCycle) error
	ListRecent(ctx context.Context, limit int) ([]ScanCycle, error)
}

// PoolStore persists the latest state of every observed pool.
type PoolStore interface {
	UpsertPools(ctx context.Context, pools []Pool) error
	ListPools(ctx context.Context, filter PoolFilter) ([]Pool, error)
	// GetPool returns ErrNotFound when the venue has no pool for the pair key.
	GetPool(ctx context.Context, venue, pairKey string) (Pool, error)
	Stats(ctx context.Context) (PoolStats, error)
}
