package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"gitledger/pkg/app"
	"gitledger/pkg/config"
	"gitledger/pkg/ledger/ledgerrpc"
	"gitledger/pkg/ledger/sqlledger"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const DefaultListen = ":50051"

func main() {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is $HOME/.gitledger/config.yaml)")
	listen := flag.String("listen", DefaultListen, "address to serve the ledger on")
	flag.Parse()

	if err := config.Load(*cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(viper.GetString("log.level"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 2. Init Ledger Backend
	db, err := app.OpenDatabase(context.Background(), logger)
	if err != nil {
		logger.Fatal("failed to open ledger database", zap.Error(err))
	}
	defer db.Close()

	// 3. Setup Network
	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", *listen), zap.Error(err))
	}

	// 4. Setup gRPC Server
	grpcServer := ledgerrpc.NewGRPCServer(sqlledger.New(db, logger), logger)

	// 5. Start Server (Async)
	go func() {
		logger.Info("ledger server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down ledger server")
	grpcServer.GracefulStop()
}
