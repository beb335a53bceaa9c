package channelsync

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"bitbucket.org/mmdatafocus/channels_backend/models"
	"bitbucket.org/mmdatafocus/channels_backend/workflow"
)

type flipkartShipment struct {
	OrderId      string             `json:"order_id"`
	Status       string             `json:"status"`
	OrderDate    string             `json:"order_date"`
	CustomerInfo flipkartCustomer   `json:"customer"`
	TotalPrice   json.Number        `json:"total_price"`
	OrderItems   []flipkartOrderItem `json:"order_items"`
}

type flipkartCustomer struct {
	Email         string `json:"email"`
	ContactNumber string `json:"contact_number"`
}

type flipkartOrderItem struct {
	Sku          string      `json:"sku"`
	Quantity     int         `json:"quantity"`
	SellingPrice json.Number `json:"selling_price"`
}

type flipkartAdapter struct {
	client *channelClient
}

func newFlipkartAdapter(apiKey string) (*flipkartAdapter, error) {
	client, err := newChannelClient("FLIPKART", "https://api.flipkart.example", apiKey)
	if err != nil {
		return nil, err
	}
	return &flipkartAdapter{client: client}, nil
}

func (a *flipkartAdapter) Channel() models.ChannelType {
	return models.ChannelFlipkart
}

func (a *flipkartAdapter) FetchOrders(ctx context.Context, updatedSince string, cursor string) (OrderPage, error) {
	params := url.Values{}
	params.Set("modified_after", updatedSince)
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	params.Set("page_size", "100")

	resp, err := a.client.getList(ctx, "/sellers/v3/shipments", params)
	if err != nil {
		return OrderPage{}, err
	}

	page := OrderPage{
		NextCursor: resp.NextCursor,
		HasMore:    resp.NextCursor != "" && (resp.HasMore == nil || *resp.HasMore),
	}
	for _, raw := range resp.records() {
		var ship flipkartShipment
		if err := json.Unmarshal(raw, &ship); err != nil {
			continue
		}
		if strings.TrimSpace(ship.OrderId) == "" {
			continue
		}
		page.Orders = append(page.Orders, flipkartToPayload(ship))
	}
	return page, nil
}

func (a *flipkartAdapter) PushInventory(ctx context.Context, updates []InventoryUpdate) error {
	type listing struct {
		Sku       string `json:"sku"`
		Inventory int    `json:"inventory"`
	}
	listings := make([]listing, 0, len(updates))
	for _, u := range updates {
		listings = append(listings, listing{Sku: u.SkuCode, Inventory: u.Quantity})
	}
	return a.client.postJSON(ctx, "/sellers/v3/listings/inventory", map[string]interface{}{"listings": listings})
}

func flipkartToPayload(ship flipkartShipment) workflow.OrderPayload {
	payload := workflow.OrderPayload{
		MarketplaceOrderId: strings.TrimSpace(ship.OrderId),
		CustomerEmail:      strings.TrimSpace(ship.CustomerInfo.Email),
		CustomerPhone:      strings.TrimSpace(ship.CustomerInfo.ContactNumber),
		TotalAmount:        decimalFromNumber(ship.TotalPrice),
		OrderDate:          parseTimeOrNow(ship.OrderDate),
		Status:             flipkartStatus(ship.Status),
	}
	for _, item := range ship.OrderItems {
		payload.Lines = append(payload.Lines, workflow.OrderLine{
			SkuCode:   strings.TrimSpace(item.Sku),
			Quantity:  item.Quantity,
			UnitPrice: decimalFromNumber(item.SellingPrice),
		})
	}
	return payload
}

func flipkartStatus(s string) models.MarketplaceOrderStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "APPROVED", "PACKING", "PACKED", "READY_TO_DISPATCH":
		return models.OrderStatusConfirmed
	case "SHIPPED":
		return models.OrderStatusShipped
	case "DELIVERED":
		return models.OrderStatusDelivered
	case "CANCELLED":
		return models.OrderStatusCancelled
	case "RETURNED", "RETURN_REQUESTED":
		return models.OrderStatusReturned
	default:
		return models.OrderStatusPending
	}
}
