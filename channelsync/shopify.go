package channelsync

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"bitbucket.org/mmdatafocus/channels_backend/models"
	"bitbucket.org/mmdatafocus/channels_backend/workflow"
)

type shopifyOrder struct {
	Name              string            `json:"name"`
	ID                json.Number       `json:"id"`
	Email             string            `json:"email"`
	Phone             string            `json:"phone"`
	TotalPrice        json.Number       `json:"total_price"`
	CreatedAt         string            `json:"created_at"`
	FinancialStatus   string            `json:"financial_status"`
	FulfillmentStatus string            `json:"fulfillment_status"`
	CancelledAt       string            `json:"cancelled_at"`
	LineItems         []shopifyLineItem `json:"line_items"`
}

type shopifyLineItem struct {
	Sku      string      `json:"sku"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
}

type shopifyAdapter struct {
	client *channelClient
}

func newShopifyAdapter(apiKey string) (*shopifyAdapter, error) {
	client, err := newChannelClient("SHOPIFY", "https://admin.shopify.example", apiKey)
	if err != nil {
		return nil, err
	}
	return &shopifyAdapter{client: client}, nil
}

func (a *shopifyAdapter) Channel() models.ChannelType {
	return models.ChannelShopify
}

func (a *shopifyAdapter) FetchOrders(ctx context.Context, updatedSince string, cursor string) (OrderPage, error) {
	params := url.Values{}
	params.Set("updated_at_min", updatedSince)
	if cursor != "" {
		params.Set("page_info", cursor)
	}
	params.Set("limit", "100")

	resp, err := a.client.getList(ctx, "/admin/api/2024-01/orders.json", params)
	if err != nil {
		return OrderPage{}, err
	}

	page := OrderPage{
		NextCursor: resp.NextCursor,
		HasMore:    resp.NextCursor != "" && (resp.HasMore == nil || *resp.HasMore),
	}
	for _, raw := range resp.records() {
		var ord shopifyOrder
		if err := json.Unmarshal(raw, &ord); err != nil {
			continue
		}
		if shopifyOrderId(ord) == "" {
			continue
		}
		page.Orders = append(page.Orders, shopifyToPayload(ord))
	}
	return page, nil
}

func (a *shopifyAdapter) PushInventory(ctx context.Context, updates []InventoryUpdate) error {
	type level struct {
		Sku       string `json:"sku"`
		Available int    `json:"available"`
	}
	levels := make([]level, 0, len(updates))
	for _, u := range updates {
		levels = append(levels, level{Sku: u.SkuCode, Available: u.Quantity})
	}
	return a.client.postJSON(ctx, "/admin/api/2024-01/inventory_levels/set.json", map[string]interface{}{"levels": levels})
}

// shopifyOrderId prefers the human-facing order name ("#1001") stripped of
// its prefix, falling back to the numeric id.
func shopifyOrderId(ord shopifyOrder) string {
	name := strings.TrimPrefix(strings.TrimSpace(ord.Name), "#")
	if name != "" {
		return name
	}
	return strings.TrimSpace(ord.ID.String())
}

func shopifyToPayload(ord shopifyOrder) workflow.OrderPayload {
	payload := workflow.OrderPayload{
		MarketplaceOrderId: shopifyOrderId(ord),
		CustomerEmail:      strings.TrimSpace(ord.Email),
		CustomerPhone:      strings.TrimSpace(ord.Phone),
		TotalAmount:        decimalFromNumber(ord.TotalPrice),
		OrderDate:          parseTimeOrNow(ord.CreatedAt),
		Status:             shopifyStatus(ord),
	}
	for _, item := range ord.LineItems {
		payload.Lines = append(payload.Lines, workflow.OrderLine{
			SkuCode:   strings.TrimSpace(item.Sku),
			Quantity:  item.Quantity,
			UnitPrice: decimalFromNumber(item.Price),
		})
	}
	return payload
}

func shopifyStatus(ord shopifyOrder) models.MarketplaceOrderStatus {
	if strings.TrimSpace(ord.CancelledAt) != "" {
		return models.OrderStatusCancelled
	}
	switch strings.ToLower(strings.TrimSpace(ord.FulfillmentStatus)) {
	case "fulfilled":
		return models.OrderStatusShipped
	case "partial":
		return models.OrderStatusConfirmed
	}
	if strings.ToLower(strings.TrimSpace(ord.FinancialStatus)) == "refunded" {
		return models.OrderStatusReturned
	}
	return models.OrderStatusPending
}
