package framecache

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"renderforge/internal/logging"
)

// Service is the frame extraction front end used by the extraction HTTP
// server. Safe for concurrent use by any number of capture workers.
type Service struct {
	cache     *lruCache
	extractor Extractor
	group     singleflight.Group
	logger    *slog.Logger
}

// NewService builds a service with the given byte budget.
func NewService(extractor Extractor, budgetBytes int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cache:     newLRUCache(budgetBytes),
		extractor: extractor,
		logger:    logging.WithComponent(logger, "framecache"),
	}
}

// Extract returns the encoded frame for (src, seconds, format), serving
// from cache when possible and coalescing concurrent identical requests
// into one underlying extraction.
func (s *Service) Extract(ctx context.Context, src string, seconds float64, format string) ([]byte, error) {
	k := makeKey(src, seconds, format)
	if data, ok := s.cache.get(k); ok {
		return data, nil
	}

	result, err, shared := s.group.Do(k.String(), func() (any, error) {
		// A concurrent request may have populated the cache while this
		// call was queued behind the flight group.
		if data, ok := s.cache.get(k); ok {
			return data, nil
		}
		// The flight serves every coalesced waiter, so the extraction must
		// outlive the leader's own request context.
		data, err := s.extractor.ExtractFrame(context.WithoutCancel(ctx), src, seconds, format)
		if err != nil {
			return nil, err
		}
		s.cache.put(k, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("coalesced extraction request",
			logging.String("src", src),
			logging.Float64("time", seconds),
			logging.String("format", format),
		)
	}
	return result.([]byte), nil
}

// CachedBytes reports the resident byte total, for diagnostics.
func (s *Service) CachedBytes() int64 {
	return s.cache.bytes()
}

// CachedEntries reports the resident entry count, for diagnostics.
func (s *Service) CachedEntries() int {
	return s.cache.len()
}
