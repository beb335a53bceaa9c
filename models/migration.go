package models

import (
	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
)

func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Brand{},
		&Warehouse{},
		&User{},
		&SKU{},
		&InventoryRecord{},
		&ChannelAllocationRule{},
		&ChannelAllocationSnapshot{},
		&MarketplaceOrder{},
		&MarketplaceOrderItem{},
		&SeenOrderRecord{},
		&ChannelConnection{},
		&ChannelSyncRun{},
		&ChannelSyncError{},
		&IdempotencyKey{},
	)
	utils.ErrorPanic(err)
}
