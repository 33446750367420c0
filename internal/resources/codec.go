// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package resources

import (
	"encoding/json"
	"fmt"

	"github.com/fabricmesh/fabric-agent/internal/cache"
)

var decoders = map[cache.Kind]func(data []byte) (cache.Resource, error){
	KindPort:          decode[Port],
	KindNetwork:       decode[Network],
	KindSubnet:        decode[Subnet],
	KindSecurityGroup: decode[SecurityGroup],
}

// Decode unmarshals one wire resource of the given kind into its typed
// record.
func Decode(kind cache.Kind, data []byte) (cache.Resource, error) {
	decodeKind, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("no record type registered for resource kind %q", kind)
	}
	return decodeKind(data)
}

// DecodeAll unmarshals a slice of raw wire resources of the given kind.
func DecodeAll(kind cache.Kind, raws []json.RawMessage) ([]cache.Resource, error) {
	decoded := make([]cache.Resource, 0, len(raws))
	for _, raw := range raws {
		resource, err := Decode(kind, raw)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, resource)
	}
	return decoded, nil
}

func decode[T any, PT interface {
	*T
	cache.Resource
}](data []byte) (cache.Resource, error) {
	record := PT(new(T))
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return record, nil
}
