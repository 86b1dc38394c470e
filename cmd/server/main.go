/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"pix-deposit-go/internal/common"
	"pix-deposit-go/internal/config"
	"pix-deposit-go/internal/metrics"
	"pix-deposit-go/internal/server"
	"pix-deposit-go/internal/session"
	"pix-deposit-go/internal/sweeper"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	addrFlag := flag.String("addr", "", "Listen address (overrides SERVER_ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting PIX deposit server")

	rec := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	services, err := common.InitializeServices(ctx, cfg, rec)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	hub := server.NewHub()
	manager := session.NewManager(services.SessionDeps(nil), services.SessionConfig(), hub.Notifier)

	srv, err := server.New(server.Config{
		Sessions: manager,
		Wallets:  services.Wallets,
		Policy:   services.Policy,
		Hub:      hub,
		Metrics:  promhttp.Handler(),
		ChainId:  cfg.Chain.ChainId,
	})
	if err != nil {
		zap.L().Fatal("Failed to create server", zap.Error(err))
	}

	sw, err := sweeper.New(sweeper.Config{
		Receipts: services.ReceiptStore,
		Sessions: manager,
		OnReap: func(ids []string) {
			for _, id := range ids {
				hub.Forget(id)
			}
		},
		Interval: cfg.Server.SweepInterval,
		Grace:    cfg.Server.SessionGrace,
		Metrics:  rec,
	})
	if err != nil {
		zap.L().Fatal("Failed to create sweeper", zap.Error(err))
	}
	sw.Start(ctx)
	defer sw.Stop()

	addr := cfg.Server.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	zap.L().Info("Press Ctrl+C to stop")
	if err := srv.Run(ctx, addr, cfg.Server.ShutdownTimeout); err != nil {
		zap.L().Fatal("Server stopped with error", zap.Error(err))
	}
}
