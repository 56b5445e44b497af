package marketdata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pesaguru/engine/internal/database"
)

// TTLCovariance is how long cached covariance results stay valid.
const TTLCovariance = 24 * time.Hour

// CalcCache stores expensive calculation results (covariance matrices and
// friends) in the cache database, serialized with msgpack. Entries carry a TTL
// and are swept periodically.
type CalcCache struct {
	db  *database.DB
	log zerolog.Logger
}

// NewCalcCache creates a calculation cache over the given database.
func NewCalcCache(db *database.DB, log zerolog.Logger) *CalcCache {
	return &CalcCache{
		db:  db,
		log: log.With().Str("component", "calc_cache").Logger(),
	}
}

// InitSchema creates the calc_cache table if missing.
func (c *CalcCache) InitSchema() error {
	_, err := c.db.Conn().Exec(`
		CREATE TABLE IF NOT EXISTS calc_cache (
			category   TEXT NOT NULL,
			cache_key  TEXT NOT NULL,
			payload    BLOB NOT NULL,
			expires_at INTEGER NOT NULL,
			PRIMARY KEY (category, cache_key)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create calc_cache table: %w", err)
	}
	return nil
}

// Get loads and decodes a cached value into dest. ok is false on miss or
// expiry; decode failures are treated as misses so callers recalculate.
func (c *CalcCache) Get(category, key string, dest interface{}) bool {
	var payload []byte
	var expiresAt int64
	err := c.db.Conn().QueryRow(`
		SELECT payload, expires_at FROM calc_cache
		WHERE category = ? AND cache_key = ?
	`, category, key).Scan(&payload, &expiresAt)
	if err != nil {
		return false
	}

	if time.Now().Unix() >= expiresAt {
		return false
	}

	if err := msgpack.Unmarshal(payload, dest); err != nil {
		c.log.Warn().Err(err).Str("category", category).Msg("Failed to decode cached payload, recalculating")
		return false
	}
	return true
}

// Set encodes and stores a value with the given TTL.
func (c *CalcCache) Set(category, key string, value interface{}, ttl time.Duration) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache payload: %w", err)
	}

	_, err = c.db.Conn().Exec(`
		INSERT INTO calc_cache (category, cache_key, payload, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(category, cache_key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at
	`, category, key, payload, time.Now().Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Sweep removes expired entries. Run from the scheduled maintenance job.
func (c *CalcCache) Sweep() (int64, error) {
	res, err := c.db.Conn().Exec(`DELETE FROM calc_cache WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed > 0 {
		c.log.Debug().Int64("removed", removed).Msg("Swept expired cache entries")
	}
	return removed, nil
}

// HashAssets creates a deterministic hash from a list of asset identifiers for
// cache keys. Assets are sorted so the hash is order-independent.
func HashAssets(assets []string) string {
	sorted := make([]string, len(assets))
	copy(sorted, assets)
	sort.Strings(sorted)
	combined := strings.Join(sorted, ",")
	h := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(h[:16])
}
