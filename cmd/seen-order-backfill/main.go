package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"
)

// Backfills seen_order_records from historical marketplace orders so the
// duplicate detector's durable store covers orders ingested before the
// detector existed.
func main() {
	companyID := flag.String("company-id", "", "Company id to backfill (optional; default = all)")
	windowDays := flag.Int("window-days", 90, "How far back to backfill")
	dryRun := flag.Bool("dry-run", true, "Print actions without writing")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	since := time.Now().Add(-time.Duration(*windowDays) * 24 * time.Hour)

	query := db.Model(&models.MarketplaceOrder{}).Where("created_at >= ?", since)
	if strings.TrimSpace(*companyID) != "" {
		query = query.Where("company_id = ?", strings.TrimSpace(*companyID))
	}

	var orders []models.MarketplaceOrder
	if err := query.Order("id").Find(&orders).Error; err != nil {
		fmt.Fprintf(os.Stderr, "order query failed: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		logger.WithFields(logrus.Fields{"orders": len(orders), "since": since.Format("2006-01-02")}).
			Info("dry-run: would backfill seen order records")
		return
	}

	created := 0
	for _, order := range orders {
		rec := models.SeenOrderRecord{
			CompanyId:          order.CompanyId,
			Channel:            order.Channel,
			MarketplaceOrderId: order.MarketplaceOrderId,
			LocalOrderId:       order.ID,
		}
		// Existing records win; the backfill never rewrites first-seen state.
		err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
		if err != nil {
			logger.WithFields(logrus.Fields{
				"company_id": order.CompanyId,
				"channel":    order.Channel,
				"order_id":   order.MarketplaceOrderId,
			}).Warn("backfill insert failed: " + err.Error())
			continue
		}
		created++
	}

	logger.WithFields(logrus.Fields{"orders": len(orders), "created": created}).
		Info("seen order backfill complete")
}
