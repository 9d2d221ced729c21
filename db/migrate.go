package db

import (
	"fmt"

	"github.com/aosus/askaosus/db/models"
	"gorm.io/gorm"
)

func AutoMigrate(gdb *gorm.DB) error {
	if gdb == nil {
		return fmt.Errorf("nil gorm db")
	}
	return gdb.AutoMigrate(
		&models.SentMessage{},
	)
}
