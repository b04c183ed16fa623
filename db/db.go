package db

import (
	log "github.com/inconshreveable/log15/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the Postgres connection and migrates the schema.
func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := gdb.AutoMigrate(&SessionRecord{}, &GroupToken{}, &UserRole{}); err != nil {
		return nil, err
	}
	log.Info("connected to postgres")
	return gdb, nil
}
