package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

// MarketplaceOrder is the local record of a pulled order. The unique index
// on (company_id, channel, marketplace_order_id) is the final backstop
// against double ingestion: the duplicate detector is an optimization, not
// the sole correctness mechanism.
type MarketplaceOrder struct {
	ID                 int                    `gorm:"primary_key" json:"id"`
	CompanyId          string                 `gorm:"uniqueIndex:uniq_mp_order,priority:1;not null" json:"company_id"`
	Channel            ChannelType            `gorm:"uniqueIndex:uniq_mp_order,priority:2;size:20;not null" json:"channel"`
	MarketplaceOrderId string                 `gorm:"uniqueIndex:uniq_mp_order,priority:3;size:128;not null" json:"marketplace_order_id"`
	Status             MarketplaceOrderStatus `gorm:"size:20;not null;default:PENDING" json:"status"`
	CustomerPhone      string                 `gorm:"size:30" json:"customer_phone"`
	CustomerEmail      string                 `gorm:"size:255" json:"customer_email"`
	TotalAmount        decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	OrderDate          time.Time              `gorm:"index;not null" json:"order_date"`
	Fingerprint        string                 `gorm:"index:idx_order_fingerprint;size:64" json:"fingerprint"`
	SyncRunId          *uint                  `gorm:"index" json:"sync_run_id"`
	Items              []MarketplaceOrderItem `gorm:"foreignKey:OrderId" json:"items"`
	CreatedAt          time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

type MarketplaceOrderItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	OrderId   int             `gorm:"index;not null" json:"order_id"`
	SkuCode   string          `gorm:"index;size:100;not null" json:"sku_code"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
}

func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// CreateMarketplaceOrder inserts the order and its items in one transaction.
// A unique-index rejection becomes ErrDuplicateOrder so a check-then-mark
// race converts into a correctly-detected duplicate instead of a failure.
func CreateMarketplaceOrder(ctx context.Context, order *MarketplaceOrder) (*MarketplaceOrder, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	order.CompanyId = companyId
	if order.Status == "" {
		order.Status = OrderStatusPending
	}
	if runId, ok := utils.GetSyncRunIdFromContext(ctx); ok {
		order.SyncRunId = &runId
	}

	err := config.GetDB().WithContext(ctx).Create(order).Error
	if err != nil {
		if IsDuplicateKeyErr(err) {
			return nil, utils.ErrDuplicateOrder
		}
		return nil, err
	}
	return order, nil
}

func GetMarketplaceOrder(ctx context.Context, id int) (*MarketplaceOrder, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return utils.FetchModel[MarketplaceOrder](ctx, companyId, id, "Items")
}

func UpdateMarketplaceOrderStatus(ctx context.Context, id int, status MarketplaceOrderStatus) error {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return errors.New("company id is required")
	}
	order, err := utils.FetchModel[MarketplaceOrder](ctx, companyId, id)
	if err != nil {
		return err
	}
	return config.GetDB().WithContext(ctx).Model(order).Update("status", status).Error
}
