// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

// Package resources defines the typed records mirrored from the control plane
// and the kind-keyed wire decoding for them. Every record is primary-keyed on
// a field called "id" and carries a server-assigned revision number.
package resources

import (
	"fmt"
	"strings"

	"github.com/fabricmesh/fabric-agent/internal/cache"
)

const (
	KindPort          cache.Kind = "ports"
	KindNetwork       cache.Kind = "networks"
	KindSubnet        cache.Kind = "subnets"
	KindSecurityGroup cache.Kind = "security_groups"
)

// AllKinds returns every resource kind this agent knows how to decode.
func AllKinds() []cache.Kind {
	return []cache.Kind{KindPort, KindNetwork, KindSubnet, KindSecurityGroup}
}

// IsValid returns true if the kind has a registered record type.
func IsValid(kind cache.Kind) bool {
	_, ok := decoders[kind]
	return ok
}

// ParseKinds parses a comma-separated kind list (e.g. "ports,networks") into
// validated kinds. An empty string means all known kinds.
func ParseKinds(list string) ([]cache.Kind, error) {
	if strings.TrimSpace(list) == "" {
		return AllKinds(), nil
	}

	var kinds []cache.Kind
	for _, part := range strings.Split(list, ",") {
		kind := cache.Kind(strings.TrimSpace(part))
		if kind == "" {
			continue
		}
		if !IsValid(kind) {
			return nil, fmt.Errorf("unknown resource kind %q", kind)
		}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no resource kinds in %q", list)
	}
	return kinds, nil
}
