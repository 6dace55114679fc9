// Package repositorycache keeps an ephemeral cache consistent with a durable,
// versioned store using the cache-aside pattern.
//
// # Overview
//
// The durable store never depends on the cache. Aside sits in front of it and
// is handed closures that perform the durable work:
//
//	aside := repositorycache.New(store, repositorycache.WithLogger(logger))
//
//	value, found, err := aside.Read(ctx, "config:max_retries", func(ctx context.Context) (string, bool, error) {
//		return repo.Current(ctx, "max_retries")
//	})
//
//	version, err := aside.Write(ctx, "config:max_retries", "3", func(ctx context.Context) (int64, error) {
//		return repo.Append(ctx, "max_retries", "3")
//	})
//
// # Read Path
//
//  1. Probe the cache for the key
//  2. On a hit, return the cached value
//  3. On a miss, load the current value from the durable store
//  4. Populate the cache when the value exists
//
// Absence is never cached. Concurrent misses on the same key share a single
// durable load.
//
// # Write Path
//
// The durable write commits first. Only a successful commit overwrites the
// cache entry, so a failed write leaves the cache exactly as it was.
//
// # Failure Handling
//
// Cache errors are logged at warn level and treated as a miss. Durable errors
// are returned to the caller unchanged.
//
// # Stale Populates
//
// Every key carries a write generation bumped by Write, Refresh and
// Invalidate under a striped lock. A miss records the generation before it
// loads and drops its populate if the generation moved, so a reader that saw
// an older version cannot overwrite a newer value written meanwhile.
//
// Writers pass the committed version along, and a write for a lower version
// than the one already cached is dropped. Racing writers therefore leave the
// cache holding the highest committed version.
//
// # Namespaces
//
// InvalidatePrefix drops every entry of a namespace such as "stripe:". Stores
// implementing cache.PrefixDeleter are cleared in one call; otherwise the keys
// this Aside has cached are deleted one by one.
package repositorycache
