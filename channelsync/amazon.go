package channelsync

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/models"
	"bitbucket.org/mmdatafocus/channels_backend/workflow"
	"github.com/shopspring/decimal"
)

type amazonOrder struct {
	AmazonOrderId  string           `json:"amazon_order_id"`
	OrderStatus    string           `json:"order_status"`
	PurchaseDate   string           `json:"purchase_date"`
	BuyerEmail     string           `json:"buyer_email"`
	BuyerPhone     string           `json:"buyer_phone"`
	OrderTotal     json.Number      `json:"order_total"`
	OrderItems     []amazonOrderItem `json:"order_items"`
}

type amazonOrderItem struct {
	SellerSku string      `json:"seller_sku"`
	Quantity  int         `json:"quantity_ordered"`
	ItemPrice json.Number `json:"item_price"`
}

type amazonAdapter struct {
	client *channelClient
}

func newAmazonAdapter(apiKey string) (*amazonAdapter, error) {
	client, err := newChannelClient("AMAZON", "https://sellingpartnerapi.amazon.example", apiKey)
	if err != nil {
		return nil, err
	}
	return &amazonAdapter{client: client}, nil
}

func (a *amazonAdapter) Channel() models.ChannelType {
	return models.ChannelAmazon
}

func (a *amazonAdapter) FetchOrders(ctx context.Context, updatedSince string, cursor string) (OrderPage, error) {
	params := url.Values{}
	params.Set("last_updated_after", updatedSince)
	if cursor != "" {
		params.Set("next_token", cursor)
	}
	params.Set("max_results", "100")

	resp, err := a.client.getList(ctx, "/orders/v0/orders", params)
	if err != nil {
		return OrderPage{}, err
	}

	page := OrderPage{
		NextCursor: resp.NextCursor,
		HasMore:    resp.NextCursor != "" && (resp.HasMore == nil || *resp.HasMore),
	}
	for _, raw := range resp.records() {
		var ord amazonOrder
		if err := json.Unmarshal(raw, &ord); err != nil {
			continue
		}
		if strings.TrimSpace(ord.AmazonOrderId) == "" {
			continue
		}
		page.Orders = append(page.Orders, amazonToPayload(ord))
	}
	return page, nil
}

func (a *amazonAdapter) PushInventory(ctx context.Context, updates []InventoryUpdate) error {
	type feedEntry struct {
		Sku      string `json:"sku"`
		Quantity int    `json:"quantity"`
	}
	feed := make([]feedEntry, 0, len(updates))
	for _, u := range updates {
		feed = append(feed, feedEntry{Sku: u.SkuCode, Quantity: u.Quantity})
	}
	return a.client.postJSON(ctx, "/feeds/v1/inventory", map[string]interface{}{"entries": feed})
}

func amazonToPayload(ord amazonOrder) workflow.OrderPayload {
	payload := workflow.OrderPayload{
		MarketplaceOrderId: strings.TrimSpace(ord.AmazonOrderId),
		CustomerEmail:      strings.TrimSpace(ord.BuyerEmail),
		CustomerPhone:      strings.TrimSpace(ord.BuyerPhone),
		TotalAmount:        decimalFromNumber(ord.OrderTotal),
		OrderDate:          parseTimeOrNow(ord.PurchaseDate),
		Status:             amazonStatus(ord.OrderStatus),
	}
	for _, item := range ord.OrderItems {
		payload.Lines = append(payload.Lines, workflow.OrderLine{
			SkuCode:   strings.TrimSpace(item.SellerSku),
			Quantity:  item.Quantity,
			UnitPrice: decimalFromNumber(item.ItemPrice),
		})
	}
	return payload
}

func amazonStatus(s string) models.MarketplaceOrderStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING", "PENDINGAVAILABILITY":
		return models.OrderStatusPending
	case "UNSHIPPED", "PARTIALLYSHIPPED":
		return models.OrderStatusConfirmed
	case "SHIPPED":
		return models.OrderStatusShipped
	case "CANCELED", "CANCELLED":
		return models.OrderStatusCancelled
	default:
		return models.OrderStatusPending
	}
}

func decimalFromNumber(n json.Number) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(n.String()))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTimeOrNow(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now()
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}
