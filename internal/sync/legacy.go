package sync

import (
	"context"
	"log/slog"
)

// Cache keys. ActiveKey holds the current dataset; the legacy keys held
// earlier, incompatible formats and are removed when found.
const (
	ActiveKey   = "reports_v3"
	LegacyKey   = "reports"
	LegacyV2Key = "reports_v2"
)

// DefaultLegacyKeys lists the keys [CleanupLegacy] removes by default.
var DefaultLegacyKeys = []string{LegacyKey, LegacyV2Key}

// CleanupLegacy removes every key in keys that holds a value. A failed
// lookup is a [KindStorageRead] error and a failed removal a
// [KindStorageWrite] error; both are returned and cleanup moves on to the
// next key.
func CleanupLegacy(ctx context.Context, store Store, keys []string, logger *slog.Logger) []*Error {
	var errs []*Error
	for _, key := range keys {
		_, found, err := store.Get(ctx, key)
		if err != nil {
			errs = append(errs, &Error{Kind: KindStorageRead, Key: key, op: opCheckLegacy, Err: err})
			continue
		}
		if !found {
			continue
		}
		if err := store.Remove(ctx, key); err != nil {
			errs = append(errs, &Error{Kind: KindStorageWrite, Key: key, op: opClearLegacy, Err: err})
			continue
		}
		logger.Info("removed legacy cache key", "key", key)
	}
	return errs
}
