package entity

import "gorm.io/gorm"

// AutoMigrate 创建/更新资格评估相关表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Supplier{},
		&Evaluation{},
		&ActivityLog{},
	)
}
