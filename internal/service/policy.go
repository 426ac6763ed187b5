package service

import (
	"github.com/insider-one/dispatch-service/internal/domain"
)

// ChannelPolicy decides which channels a tenant may use. Tenants without an
// override list may use every channel.
type ChannelPolicy struct {
	overrides map[string]map[domain.Channel]struct{}
}

// NewChannelPolicy creates a ChannelPolicy from tenant allowlists
func NewChannelPolicy(overrides map[string][]string) *ChannelPolicy {
	p := &ChannelPolicy{overrides: make(map[string]map[domain.Channel]struct{}, len(overrides))}
	for tenant, channels := range overrides {
		allowed := make(map[domain.Channel]struct{}, len(channels))
		for _, ch := range channels {
			allowed[domain.Channel(ch)] = struct{}{}
		}
		p.overrides[tenant] = allowed
	}
	return p
}

// ChannelEnabled reports whether tenantID may send on channel
func (p *ChannelPolicy) ChannelEnabled(tenantID string, channel domain.Channel) bool {
	if tenantID == "" {
		return true
	}
	allowed, ok := p.overrides[tenantID]
	if !ok {
		return true
	}
	_, enabled := allowed[channel]
	return enabled
}
