// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package natsio

import (
	"encoding/json"
	"fmt"

	"github.com/fabricmesh/fabric-agent/internal/cache"
	"github.com/fabricmesh/fabric-agent/internal/resources"
)

// batchEnvelope is the wire form of one push notification.
type batchEnvelope struct {
	Event     string            `json:"event"`
	Kind      string            `json:"kind"`
	Resources []json.RawMessage `json:"resources"`
}

// EncodeBatch marshals a batch into its wire envelope.
func EncodeBatch(batch cache.Batch) ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(batch.Resources))
	for _, resource := range batch.Resources {
		raw, err := json.Marshal(resource)
		if err != nil {
			return nil, fmt.Errorf("encode %s resource %s: %w", batch.Kind, resource.ResourceID(), err)
		}
		raws = append(raws, raw)
	}

	return json.Marshal(batchEnvelope{
		Event:     string(batch.Event),
		Kind:      batch.Kind.String(),
		Resources: raws,
	})
}

// DecodeBatch unmarshals a wire envelope into a typed batch.
func DecodeBatch(data []byte) (cache.Batch, error) {
	var envelope batchEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return cache.Batch{}, fmt.Errorf("decode batch envelope: %w", err)
	}

	kind := cache.Kind(envelope.Kind)
	decoded, err := resources.DecodeAll(kind, envelope.Resources)
	if err != nil {
		return cache.Batch{}, fmt.Errorf("decode %s batch: %w", kind, err)
	}

	switch event := cache.BatchEvent(envelope.Event); event {
	case cache.BatchCreated, cache.BatchUpdated, cache.BatchDeleted:
		return cache.Batch{Kind: kind, Event: event, Resources: decoded}, nil
	default:
		return cache.Batch{}, fmt.Errorf("unknown batch event %q", envelope.Event)
	}
}

// EncodeResourceList marshals a bulk-pull reply.
func EncodeResourceList(list []cache.Resource) ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(list))
	for _, resource := range list {
		raw, err := json.Marshal(resource)
		if err != nil {
			return nil, fmt.Errorf("encode resource %s: %w", resource.ResourceID(), err)
		}
		raws = append(raws, raw)
	}
	return json.Marshal(raws)
}

// DecodeResourceList unmarshals a bulk-pull reply for the given kind.
func DecodeResourceList(kind cache.Kind, data []byte) ([]cache.Resource, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode %s resource list: %w", kind, err)
	}
	return resources.DecodeAll(kind, raws)
}
