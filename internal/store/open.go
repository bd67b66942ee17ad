package store

import (
	"context"
	"fmt"
	"time"
)

// Drivers accepted by Open.
const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverRedis     = "redis"
	DriverFirestore = "firestore"
)

// Options selects and configures a backend.
type Options struct {
	Driver string

	SQLitePath  string
	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FirestoreProject     string
	FirestoreCredentials string

	// Prefix namespaces Redis keys and Firestore collection names.
	Prefix string

	ReadyTimeout     time.Duration
	MaxDocumentBytes int
}

// Open builds the configured backend wrapped with the readiness gate and
// the document size ceiling.
func Open(ctx context.Context, o Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch o.Driver {
	case DriverMemory:
		s = NewMemory()
	case DriverSQLite, "":
		s, err = OpenSQLite(o.SQLitePath)
	case DriverPostgres:
		s, err = OpenPostgres(o.PostgresDSN)
	case DriverRedis:
		s = OpenRedis(o.RedisAddr, o.RedisPassword, o.RedisDB, o.Prefix)
	case DriverFirestore:
		s, err = OpenFirestore(ctx, o.FirestoreProject, o.FirestoreCredentials, o.Prefix)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", o.Driver)
	}
	if err != nil {
		return nil, err
	}
	return WithSizeLimit(WithReadiness(s, o.ReadyTimeout), o.MaxDocumentBytes), nil
}
