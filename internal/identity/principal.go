// Package identity carries the resolved caller identity through every core
// entry point. Services receive a Principal explicitly; nothing in the core
// reads ambient request state.
package identity

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

const (
	ActorTypeUser   = "user"
	ActorTypeAPIKey = "api_key"
	ActorTypeSystem = "system"
)

// Principal is the authenticated caller.
type Principal struct {
	ActorID       snowflake.ID
	ActorType     string
	IsSystemAdmin bool
	OrgIDs        []snowflake.ID
}

// System returns the principal used by in-process jobs.
func System() Principal {
	return Principal{ActorType: ActorTypeSystem, IsSystemAdmin: true}
}

// MemberOf reports whether the principal belongs to the organization.
// System administrators are members of every organization.
func (p Principal) MemberOf(orgID snowflake.ID) bool {
	if p.IsSystemAdmin {
		return true
	}
	for _, id := range p.OrgIDs {
		if id == orgID {
			return true
		}
	}
	return false
}

// Subject is the casbin subject string for the principal.
func (p Principal) Subject() string {
	if p.ActorType == ActorTypeSystem {
		return ActorTypeSystem
	}
	return fmt.Sprintf("%s:%s", p.ActorType, p.ActorID.String())
}
