package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/Kashikuroni/api-yamdb/internal/config"
	"github.com/Kashikuroni/api-yamdb/internal/importer"
	"github.com/Kashikuroni/api-yamdb/internal/model"
	"github.com/Kashikuroni/api-yamdb/internal/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// main 从 CSV 数据集导入演示数据。
//
// 用法: import -dir static/data [-config configs/config.json]
func main() {
	dir := flag.String("dir", "static/data", "directory with the csv dataset")
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	appLogger := logger.NewDefault(cfg.App.LogLevel)

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		appLogger.Error("connect database failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Category{},
		&model.Genre{},
		&model.Title{},
		&model.GenreTitle{},
		&model.Review{},
		&model.Comment{},
	); err != nil {
		appLogger.Error("migrate database failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	im := importer.New(db, appLogger, *dir)
	if err := im.Run(context.Background()); err != nil {
		appLogger.Error("import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	appLogger.Info("import finished", slog.String("dir", *dir))
}
