// Command seedroot creates the root administrator account. It is meant to be
// run once against a fresh database:
//
//	seedroot <email> <password>
package main

import (
	"fmt"
	"os"

	"support-api/internal/model"
	"support-api/pkg/config"
	"support-api/pkg/database"
	"support-api/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const rootUserID = "ROOT-ADMIN"

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <email> <password>\n", os.Args[0])
		os.Exit(1)
	}
	email := model.NormalizeIdentifier(os.Args[1])
	password := os.Args[2]

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logger.InitLogger(cfg)
	log := logger.GetLogger()

	if _, err := database.InitDB(&cfg.DB); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(&model.User{}, &model.Branch{}, &model.UserHitLog{}); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	var existing model.User
	if result := database.GetDB().Where("role = ?", model.RoleRoot).First(&existing); result.Error == nil {
		log.Fatal("Root administrator already exists", zap.String("user_id", existing.UserID))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		log.Fatal("Failed to hash password", zap.Error(err))
	}

	root := model.User{
		UserID:       rootUserID,
		Email:        &email,
		Name:         "Root Administrator",
		PasswordHash: string(hash),
		Role:         model.RoleRoot,
		IsActive:     true,
	}
	if err := database.GetDB().Create(&root).Error; err != nil {
		log.Fatal("Failed to create root administrator", zap.Error(err))
	}

	log.Info("Root administrator created",
		zap.Uint("id", root.ID),
		zap.String("user_id", root.UserID),
		zap.String("email", email))
}
