package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewardtask-controlplane/pkg/accesscontrol"
	"rewardtask-controlplane/pkg/config"
	"rewardtask-controlplane/pkg/db"
	"rewardtask-controlplane/pkg/featureflags"
	"rewardtask-controlplane/pkg/hashistack/secretmanager"
	"rewardtask-controlplane/pkg/hashistack/servicediscover"
	"rewardtask-controlplane/pkg/health"
	"rewardtask-controlplane/pkg/httpapi"
	"rewardtask-controlplane/pkg/logger"
	"rewardtask-controlplane/pkg/otelcol"
	"rewardtask-controlplane/pkg/profiling"
	"rewardtask-controlplane/pkg/redis"
	"rewardtask-controlplane/pkg/sequence"
	"rewardtask-controlplane/pkg/server"
	"rewardtask-controlplane/pkg/task"
	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/approval"
	"rewardtask-controlplane/services/audit"
	"rewardtask-controlplane/services/catalog"
	"rewardtask-controlplane/services/ledger"
	"rewardtask-controlplane/services/order"
	"rewardtask-controlplane/services/setting"
	"rewardtask-controlplane/services/vip"
	"rewardtask-controlplane/services/wheel"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		featureflags.Module,
		accesscontrol.Module,
		health.Module,
		fx.Provide(provideSnowflakeNode),
		fx.Invoke(migrate),
		audit.Module,
		account.Module,
		ledger.Module,
		vip.Module,
		setting.Module,
		approval.Module,
		catalog.Module,
		order.Module,
		wheel.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		servicediscover.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})

func provideSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.Snowflake.Node)
}

func migrate(cfg *config.Config, conn *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}

	zap.L().Info("[DB] running auto migration")
	return db.Migrate(conn,
		&account.Account{},
		&ledger.LedgerEntry{},
		&audit.AuditLog{},
		&vip.Tier{},
		&setting.Setting{},
		&catalog.Product{},
		&catalog.Task{},
		&order.TaskOrder{},
		&wheel.Prize{},
		&wheel.Spin{},
	)
}
