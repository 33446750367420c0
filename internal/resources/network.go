// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package resources

import (
	"time"

	"github.com/fabricmesh/fabric-agent/internal/cache"
)

// Network is a layer-2 broadcast domain.
type Network struct {
	ID       string    `json:"id"`
	Revision int64     `json:"revision_number"`
	Updated  time.Time `json:"updated_at"`

	Name         string `json:"name"`
	Status       string `json:"status"`
	Zone         string `json:"zone"`
	MTU          int    `json:"mtu"`
	AdminStateUp bool   `json:"admin_state_up"`
	Shared       bool   `json:"shared"`
}

var _ cache.Resource = (*Network)(nil)

func (n *Network) ResourceID() string { return n.ID }
func (n *Network) RevisionNumber() int64 { return n.Revision }
func (n *Network) UpdatedAt() time.Time { return n.Updated }

func (n *Network) Fields() map[string]any {
	return map[string]any{
		"name":           n.Name,
		"status":         n.Status,
		"zone":           n.Zone,
		"mtu":            n.MTU,
		"admin_state_up": n.AdminStateUp,
		"shared":         n.Shared,
	}
}
