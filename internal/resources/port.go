// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package resources

import (
	"time"

	"github.com/fabricmesh/fabric-agent/internal/cache"
)

// Port is a logical attachment point on a network.
type Port struct {
	ID       string    `json:"id"`
	Revision int64     `json:"revision_number"`
	Updated  time.Time `json:"updated_at"`

	Name         string   `json:"name"`
	NetworkID    string   `json:"network_id"`
	MACAddress   string   `json:"mac_address"`
	DeviceID     string   `json:"device_id"`
	Status       string   `json:"status"`
	AdminStateUp bool     `json:"admin_state_up"`
	FixedIPs     []string `json:"fixed_ips"`
}

var _ cache.Resource = (*Port)(nil)

func (p *Port) ResourceID() string { return p.ID }
func (p *Port) RevisionNumber() int64 { return p.Revision }
func (p *Port) UpdatedAt() time.Time { return p.Updated }

// Fields returns the canonical semantic field map. Revision and update
// timestamp are deliberately absent.
func (p *Port) Fields() map[string]any {
	return map[string]any{
		"name":           p.Name,
		"network_id":     p.NetworkID,
		"mac_address":    p.MACAddress,
		"device_id":      p.DeviceID,
		"status":         p.Status,
		"admin_state_up": p.AdminStateUp,
		"fixed_ips":      p.FixedIPs,
	}
}
