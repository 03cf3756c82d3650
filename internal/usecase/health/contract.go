package health

import "context"

// DBPinger checks relational backend availability. *sql.DB satisfies it.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// CachePinger checks result cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// DelegateChecker checks search delegate availability.
type DelegateChecker interface {
	Health(ctx context.Context) error
}
