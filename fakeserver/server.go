// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fabricmesh/fabric-agent/internal/cache"
	"github.com/fabricmesh/fabric-agent/internal/resources"
	"github.com/fabricmesh/fabric-agent/internal/transport/natsio"
)

// FakeServer is a stand-in control plane for manual and integration testing.
// It answers bulk-pull requests with its current resource set and publishes a
// stream of mutation batches, including the occasional duplicate and stale
// revision so the agent's staleness handling gets exercised.
type FakeServer struct {
	natsURL      string
	mutatePeriod time.Duration
	logger       *zap.Logger
	stopChan     chan struct{}

	conn *nats.Conn
	subs []*nats.Subscription

	mu       sync.Mutex
	state    map[cache.Kind]map[string]cache.Resource
	revision int64
}

func (fs *FakeServer) start() error {
	conn, err := nats.Connect(fs.natsURL, nats.Name("fake-control-plane"))
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", fs.natsURL, err)
	}
	fs.conn = conn

	fs.seed()

	for _, kind := range resources.AllKinds() {
		kind := kind
		sub, err := conn.Subscribe(natsio.BulkPullSubject(kind), func(msg *nats.Msg) {
			fs.serveBulkPull(kind, msg)
		})
		if err != nil {
			conn.Close()
			return fmt.Errorf("subscribe bulk pull for %s: %w", kind, err)
		}
		fs.subs = append(fs.subs, sub)
	}

	go fs.mutateLoop()

	fs.logger.Info("Fake control plane running",
		zap.String("nats_url", fs.natsURL),
		zap.Duration("mutate_period", fs.mutatePeriod),
	)
	return nil
}

func (fs *FakeServer) stop() {
	close(fs.stopChan)
	for _, sub := range fs.subs {
		sub.Unsubscribe() //nolint:errcheck
	}
	if fs.conn != nil {
		fs.conn.Close()
	}
}

// seed populates a small initial resource set.
func (fs *FakeServer) seed() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.state = make(map[cache.Kind]map[string]cache.Resource)
	for _, kind := range resources.AllKinds() {
		fs.state[kind] = make(map[string]cache.Resource)
	}

	network := &resources.Network{
		ID:       uuid.New().String(),
		Revision: fs.nextRevision(),
		Updated:  time.Now().UTC(),
		Name:     "default",
		Status:   "ACTIVE",
		Zone:     "zone-a",
		MTU:      1500,
	}
	fs.state[resources.KindNetwork][network.ID] = network

	for i := 0; i < 5; i++ {
		port := &resources.Port{
			ID:           uuid.New().String(),
			Revision:     fs.nextRevision(),
			Updated:      time.Now().UTC(),
			Name:         fmt.Sprintf("port-%d", i),
			NetworkID:    network.ID,
			MACAddress:   fmt.Sprintf("02:00:00:00:00:%02x", i),
			Status:       "ACTIVE",
			AdminStateUp: true,
		}
		fs.state[resources.KindPort][port.ID] = port
	}
}

func (fs *FakeServer) nextRevision() int64 {
	fs.revision++
	return fs.revision
}

func (fs *FakeServer) serveBulkPull(kind cache.Kind, msg *nats.Msg) {
	fs.mu.Lock()
	list := make([]cache.Resource, 0, len(fs.state[kind]))
	for _, resource := range fs.state[kind] {
		list = append(list, resource)
	}
	fs.mu.Unlock()

	data, err := natsio.EncodeResourceList(list)
	if err != nil {
		fs.logger.Error("Cannot encode bulk pull reply", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		fs.logger.Error("Cannot send bulk pull reply", zap.Error(err))
	}
	fs.logger.Debug("Served bulk pull",
		zap.String("kind", kind.String()),
		zap.Int("count", len(list)),
	)
}

// mutateLoop publishes a mutation batch every period. Roughly one in five
// batches is a verbatim duplicate of the previous one to exercise the agent's
// at-least-once tolerance.
func (fs *FakeServer) mutateLoop() {
	ticker := time.NewTicker(fs.mutatePeriod)
	defer ticker.Stop()

	var lastSubject string
	var lastPayload []byte

	for {
		select {
		case <-fs.stopChan:
			return
		case <-ticker.C:
		}

		if lastPayload != nil && rand.Intn(5) == 0 {
			if err := fs.conn.Publish(lastSubject, lastPayload); err != nil {
				fs.logger.Error("Cannot republish batch", zap.Error(err))
			}
			fs.logger.Debug("Republished previous batch", zap.String("subject", lastSubject))
			continue
		}

		batch := fs.randomBatch()
		payload, err := natsio.EncodeBatch(batch)
		if err != nil {
			fs.logger.Error("Cannot encode batch", zap.Error(err))
			continue
		}

		subject := natsio.PushSubject(batch.Kind)
		if err := fs.conn.Publish(subject, payload); err != nil {
			fs.logger.Error("Cannot publish batch", zap.Error(err))
			continue
		}
		lastSubject, lastPayload = subject, payload

		fs.logger.Info("Published mutation batch",
			zap.String("subject", subject),
			zap.String("event", string(batch.Event)),
			zap.Int("count", len(batch.Resources)),
		)
	}
}

// randomBatch creates, updates, or deletes a random port.
func (fs *FakeServer) randomBatch() cache.Batch {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ports := fs.state[resources.KindPort]

	var existing *resources.Port
	for _, resource := range ports {
		existing = resource.(*resources.Port)
		break
	}

	switch {
	case existing == nil || rand.Intn(4) == 0:
		port := &resources.Port{
			ID:           uuid.New().String(),
			Revision:     fs.nextRevision(),
			Updated:      time.Now().UTC(),
			Name:         fmt.Sprintf("port-%d", rand.Intn(1000)),
			Status:       "ACTIVE",
			AdminStateUp: true,
		}
		ports[port.ID] = port
		return cache.Batch{Kind: resources.KindPort, Event: cache.BatchCreated, Resources: []cache.Resource{port}}

	case rand.Intn(4) == 0:
		delete(ports, existing.ID)
		tombstone := &resources.Port{ID: existing.ID, Revision: fs.nextRevision(), Updated: time.Now().UTC()}
		return cache.Batch{Kind: resources.KindPort, Event: cache.BatchDeleted, Resources: []cache.Resource{tombstone}}

	default:
		updated := *existing
		updated.Revision = fs.nextRevision()
		updated.Updated = time.Now().UTC()
		if updated.Status == "ACTIVE" {
			updated.Status = "DOWN"
		} else {
			updated.Status = "ACTIVE"
		}
		ports[updated.ID] = &updated
		return cache.Batch{Kind: resources.KindPort, Event: cache.BatchUpdated, Resources: []cache.Resource{&updated}}
	}
}
