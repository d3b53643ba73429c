package cfg

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
	"github.com/linnemanlabs/ksiwatch/internal/evidence/filestore"
	"github.com/linnemanlabs/ksiwatch/internal/evidence/memstore"
	"github.com/linnemanlabs/ksiwatch/internal/evidence/pgstore"
	"github.com/linnemanlabs/ksiwatch/internal/evidence/redisstore"
)

// OpenStore connects the configured backend. The returned close function is
// never nil.
func (c *StoreConfig) OpenStore(ctx context.Context) (evidence.Store, func(), error) {
	noop := func() {}

	switch c.Backend {
	case BackendMemory, "":
		return memstore.New(), noop, nil
	case BackendFile:
		s, err := filestore.New(c.EvidenceDir)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case BackendPostgres:
		s, err := pgstore.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("pgstore init: %w", err)
		}
		return s, s.Close, nil
	case BackendRedis:
		s, err := redisstore.New(ctx, redisstore.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("redisstore init: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown store backend %q", c.Backend)
}
