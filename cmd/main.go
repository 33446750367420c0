/*
Copyright 2025 FabricMesh, Inc. All Rights Reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	gops "github.com/google/gops/agent"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fabricmesh/fabric-agent/internal/agent"
	"github.com/fabricmesh/fabric-agent/internal/resources"
	"github.com/fabricmesh/fabric-agent/internal/transport/natsio"
)

// healthHandler reports whether the mirror is seeded and connected.
func healthHandler(a *agent.Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if a.Healthy() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

// bindEnv is a helper function that binds an environment variable to a key and handles errors.
func bindEnv(logger *zap.SugaredLogger, key, envVar string) {
	if err := viper.BindEnv(key, envVar); err != nil {
		logger.Errorw("Error binding environment variable",
			"error", err,
			"variable", envVar,
		)
	}
}

func main() {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoder := zapcore.NewJSONEncoder(encoderConfig)
	consoleSyncer := zapcore.AddSync(os.Stdout)

	atomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core := zapcore.NewCore(encoder, consoleSyncer, atomicLevel)
	baseLogger := zap.New(core, zap.AddCaller())
	logger := baseLogger.Sugar()
	defer logger.Sync() //nolint:errcheck

	viper.AutomaticEnv()

	bindEnv(logger, "nats_url", "NATS_URL")
	bindEnv(logger, "nats_token", "NATS_TOKEN")
	bindEnv(logger, "nats_ca_file", "NATS_CA_FILE")
	bindEnv(logger, "nats_cert_file", "NATS_CERT_FILE")
	bindEnv(logger, "nats_key_file", "NATS_KEY_FILE")
	bindEnv(logger, "resource_kinds", "RESOURCE_KINDS")
	bindEnv(logger, "tombstone_ttl", "TOMBSTONE_TTL")
	bindEnv(logger, "log_level", "LOG_LEVEL")

	viper.SetDefault("nats_url", "nats://127.0.0.1:4222")
	viper.SetDefault("resource_kinds", "")
	viper.SetDefault("tombstone_ttl", "0")
	viper.SetDefault("log_level", "info")

	if level, err := zapcore.ParseLevel(viper.GetString("log_level")); err == nil {
		atomicLevel.SetLevel(level)
	} else {
		logger.Warnw("Unknown log level, keeping info", "log_level", viper.GetString("log_level"))
	}

	kinds, err := resources.ParseKinds(viper.GetString("resource_kinds"))
	if err != nil {
		logger.Fatalw("Invalid resource kinds", "error", err)
	}

	config := agent.Config{
		Kinds: kinds,
		Nats: natsio.Config{
			URL:      viper.GetString("nats_url"),
			Name:     "fabric-agent",
			Token:    viper.GetString("nats_token"),
			CAFile:   viper.GetString("nats_ca_file"),
			CertFile: viper.GetString("nats_cert_file"),
			KeyFile:  viper.GetString("nats_key_file"),
		},
		TombstoneTTL: viper.GetDuration("tombstone_ttl"),
		BaseLogger:   baseLogger,
	}

	logger.Infow("Starting fabric-agent",
		"nats_url", config.Nats.URL,
		"resource_kinds", kinds,
		"tombstone_ttl", config.TombstoneTTL,
	)

	if err := gops.Listen(gops.Options{}); err != nil {
		logger.Errorw("Failed to start gops agent", "error", err)
	}

	mirror := agent.New(config)
	http.HandleFunc("/healthz", healthHandler(mirror))

	errChan := make(chan error, 1)

	go func() {
		errChan <- http.ListenAndServe(":8080", nil)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		errChan <- mirror.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Infow("Shutting down")
	case err := <-errChan:
		logger.Fatalw("Agent exited", "error", err)
	}
}
