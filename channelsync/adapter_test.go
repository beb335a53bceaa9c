package channelsync

import (
	"encoding/json"
	"testing"

	"bitbucket.org/mmdatafocus/channels_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LooksUpByChannel(t *testing.T) {
	amazon, err := newAmazonAdapter("test-key")
	require.NoError(t, err)
	shopify, err := newShopifyAdapter("test-key")
	require.NoError(t, err)

	reg := NewRegistry(amazon, shopify)

	got, err := reg.Adapter(models.ChannelAmazon)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelAmazon, got.Channel())

	_, err = reg.Adapter(models.ChannelFlipkart)
	assert.Error(t, err, "unregistered channel must not resolve")
}

func TestBuildRegistry_RejectsEmptyKey(t *testing.T) {
	_, err := BuildRegistry("")
	assert.Error(t, err)
}

func TestAmazonToPayload(t *testing.T) {
	raw := `{
		"amazon_order_id": "171-123",
		"order_status": "Unshipped",
		"purchase_date": "2026-03-14T10:00:00Z",
		"buyer_email": "buyer@example.com",
		"buyer_phone": "+919876543210",
		"order_total": "499.00",
		"order_items": [
			{"seller_sku": "TSHIRT-M", "quantity_ordered": 2, "item_price": "249.50"}
		]
	}`
	var ord amazonOrder
	require.NoError(t, json.Unmarshal([]byte(raw), &ord))

	payload := amazonToPayload(ord)
	assert.Equal(t, "171-123", payload.MarketplaceOrderId)
	assert.Equal(t, models.OrderStatusConfirmed, payload.Status)
	assert.Equal(t, "499", payload.TotalAmount.String())
	require.Len(t, payload.Lines, 1)
	assert.Equal(t, "TSHIRT-M", payload.Lines[0].SkuCode)
	assert.Equal(t, 2, payload.Lines[0].Quantity)
}

func TestShopifyOrderId_PrefersNameOverNumericId(t *testing.T) {
	ord := shopifyOrder{Name: "#1001", ID: json.Number("5550001")}
	assert.Equal(t, "1001", shopifyOrderId(ord))

	ord = shopifyOrder{ID: json.Number("5550001")}
	assert.Equal(t, "5550001", shopifyOrderId(ord))
}

func TestShopifyStatus(t *testing.T) {
	assert.Equal(t, models.OrderStatusCancelled,
		shopifyStatus(shopifyOrder{CancelledAt: "2026-03-14T10:00:00Z", FulfillmentStatus: "fulfilled"}))
	assert.Equal(t, models.OrderStatusShipped,
		shopifyStatus(shopifyOrder{FulfillmentStatus: "fulfilled"}))
	assert.Equal(t, models.OrderStatusReturned,
		shopifyStatus(shopifyOrder{FinancialStatus: "refunded"}))
	assert.Equal(t, models.OrderStatusPending, shopifyStatus(shopifyOrder{}))
}

func TestFlipkartStatus(t *testing.T) {
	assert.Equal(t, models.OrderStatusReturned, flipkartStatus("RETURNED"))
	assert.Equal(t, models.OrderStatusCancelled, flipkartStatus("CANCELLED"))
	assert.Equal(t, models.OrderStatusConfirmed, flipkartStatus("approved"))
	assert.Equal(t, models.OrderStatusPending, flipkartStatus("SOMETHING_NEW"))
}
