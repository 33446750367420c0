// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package resources

import (
	"time"

	"github.com/fabricmesh/fabric-agent/internal/cache"
)

// SecurityGroup is a named set of filtering rules applied to ports.
type SecurityGroup struct {
	ID       string    `json:"id"`
	Revision int64     `json:"revision_number"`
	Updated  time.Time `json:"updated_at"`

	Name        string   `json:"name"`
	Description string   `json:"description"`
	Stateful    bool     `json:"stateful"`
	Tags        []string `json:"tags"`
}

var _ cache.Resource = (*SecurityGroup)(nil)

func (g *SecurityGroup) ResourceID() string { return g.ID }
func (g *SecurityGroup) RevisionNumber() int64 { return g.Revision }
func (g *SecurityGroup) UpdatedAt() time.Time { return g.Updated }

func (g *SecurityGroup) Fields() map[string]any {
	return map[string]any{
		"name":        g.Name,
		"description": g.Description,
		"stateful":    g.Stateful,
		"tags":        g.Tags,
	}
}
