// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package resources

import (
	"time"

	"github.com/fabricmesh/fabric-agent/internal/cache"
)

// Subnet is an address block allocated on a network.
type Subnet struct {
	ID       string    `json:"id"`
	Revision int64     `json:"revision_number"`
	Updated  time.Time `json:"updated_at"`

	Name       string `json:"name"`
	NetworkID  string `json:"network_id"`
	CIDR       string `json:"cidr"`
	GatewayIP  string `json:"gateway_ip"`
	EnableDHCP bool   `json:"enable_dhcp"`
}

var _ cache.Resource = (*Subnet)(nil)

func (s *Subnet) ResourceID() string { return s.ID }
func (s *Subnet) RevisionNumber() int64 { return s.Revision }
func (s *Subnet) UpdatedAt() time.Time { return s.Updated }

func (s *Subnet) Fields() map[string]any {
	return map[string]any{
		"name":        s.Name,
		"network_id":  s.NetworkID,
		"cidr":        s.CIDR,
		"gateway_ip":  s.GatewayIP,
		"enable_dhcp": s.EnableDHCP,
	}
}
