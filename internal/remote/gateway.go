package remote

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lookym/datasync/internal/db"
)

// Gateway is the single client object every store talks through. It exposes
// relational reads and writes against the named collections, the atomic
// like-counter RPCs and the authentication primitives, all backed by the
// hosted relational service.
type Gateway struct {
	pool db.Pool
}

// New constructs a Gateway over the provided connection pool.
func New(pool db.Pool) *Gateway {
	if pool == nil {
		panic("remote: gateway requires a pool")
	}
	return &Gateway{pool: pool}
}

// mapWriteError translates constraint violations into gateway sentinels.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrConflict
		case "23503":
			return ErrNotFound
		}
	}
	return err
}
