package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/config"
	"github.com/dnsoftware/pvx-wallet/pkg/logger"
	"github.com/dnsoftware/pvx-wallet/pkg/utils"

	"github.com/dnsoftware/pvx-wallet/internal/app"
	"github.com/dnsoftware/pvx-wallet/internal/constants"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	basePath, err := utils.GetProjectRoot(constants.ProjectRootAnchorFile)
	if err != nil {
		// бинарник запущен вне дерева исходников, конфиг ищем в рабочем каталоге
		basePath = "."
	}
	configFile := basePath + "/config.yaml"
	envFile := basePath + "/.env"

	cfg, err := config.New(configFile, envFile, os.Args[1:])
	if err != nil {
		log.Fatalf("Main config failed: %s", err.Error())
	}

	filePath := cfg.App.LogFile
	if filePath == "" {
		filePath = basePath + "/" + constants.AppLogFile
	}
	logger.InitLogger(cfg.App.Env, filePath)
	defer logger.Log().Sync()

	logger.Log().Info("service starting",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("storage", cfg.Storage.Type))

	if err := app.Run(ctx, cfg, logger.Log()); err != nil {
		logger.Log().Error("service stopped with error", zap.Error(err))
		_ = logger.Log().Sync()
		os.Exit(1)
	}
	logger.Log().Info("service stopped")
}
