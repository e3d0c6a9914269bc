package cache

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	ruledomain "github.com/wasteflow/wasteflow/internal/commissionrule/domain"
)

const defaultResolvedTTL = time.Minute

// DefaultsCache stores resolved commission defaults per
// (org, collector, month). Any rule mutation drops the whole org so
// stale defaults never outlive a change by more than the TTL.
type DefaultsCache interface {
	Get(orgID, collectorID snowflake.ID, billingMonth string) (map[string]ruledomain.ResolvedDefault, bool)
	Set(orgID, collectorID snowflake.ID, billingMonth string, defaults map[string]ruledomain.ResolvedDefault)
	InvalidateOrg(orgID snowflake.ID)
}

type defaultsCache struct {
	entries Cache[string, map[string]ruledomain.ResolvedDefault]
	ttl     time.Duration
}

func NewDefaultsCache() DefaultsCache {
	return &defaultsCache{
		entries: NewTTLCache[string, map[string]ruledomain.ResolvedDefault](),
		ttl:     defaultResolvedTTL,
	}
}

func (c *defaultsCache) Get(orgID, collectorID snowflake.ID, billingMonth string) (map[string]ruledomain.ResolvedDefault, bool) {
	return c.entries.Get(defaultsKey(orgID, collectorID, billingMonth))
}

func (c *defaultsCache) Set(orgID, collectorID snowflake.ID, billingMonth string, defaults map[string]ruledomain.ResolvedDefault) {
	if defaults == nil {
		return
	}
	c.entries.Set(defaultsKey(orgID, collectorID, billingMonth), defaults, c.ttl)
}

func (c *defaultsCache) InvalidateOrg(orgID snowflake.ID) {
	prefix := orgID.String() + "|"
	c.entries.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

func defaultsKey(orgID, collectorID snowflake.ID, billingMonth string) string {
	return orgID.String() + "|" + collectorID.String() + "|" + billingMonth
}
