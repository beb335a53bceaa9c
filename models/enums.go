package models

// ChannelType identifies a sales channel (marketplace or own storefront).
type ChannelType string

const (
	ChannelAmazon   ChannelType = "AMAZON"
	ChannelFlipkart ChannelType = "FLIPKART"
	ChannelShopify  ChannelType = "SHOPIFY"
	ChannelD2C      ChannelType = "D2C"
)

func (t ChannelType) IsValid() bool {
	switch t {
	case ChannelAmazon, ChannelFlipkart, ChannelShopify, ChannelD2C:
		return true
	}
	return false
}

func AllChannelTypes() []ChannelType {
	return []ChannelType{ChannelAmazon, ChannelFlipkart, ChannelShopify, ChannelD2C}
}

// AllocationType decides how a channel's raw share of available stock is
// computed. PRIORITY and FAIR_SHARE currently receive the UNLIMITED raw-pass
// treatment; the distinction is carried through results for configuration
// and reporting but no preferential weighting is applied.
type AllocationType string

const (
	AllocationPercentage AllocationType = "PERCENTAGE"
	AllocationFixed      AllocationType = "FIXED"
	AllocationUnlimited  AllocationType = "UNLIMITED"
	AllocationPriority   AllocationType = "PRIORITY"
	AllocationFairShare  AllocationType = "FAIR_SHARE"
)

func (t AllocationType) IsValid() bool {
	switch t {
	case AllocationPercentage, AllocationFixed, AllocationUnlimited, AllocationPriority, AllocationFairShare:
		return true
	}
	return false
}

// BufferType decides how much safety stock is withheld from a channel's
// allocation.
type BufferType string

const (
	BufferFixed       BufferType = "FIXED"
	BufferPercentage  BufferType = "PERCENTAGE"
	BufferDaysOfCover BufferType = "DAYS_OF_COVER"
	BufferDynamic     BufferType = "DYNAMIC"
	BufferNone        BufferType = "NONE"
)

func (t BufferType) IsValid() bool {
	switch t {
	case BufferFixed, BufferPercentage, BufferDaysOfCover, BufferDynamic, BufferNone:
		return true
	}
	return false
}

// MarketplaceOrderStatus is the local lifecycle of a pulled order.
// Cancelled/returned/failed orders are excluded from sales-velocity math.
type MarketplaceOrderStatus string

const (
	OrderStatusPending   MarketplaceOrderStatus = "PENDING"
	OrderStatusConfirmed MarketplaceOrderStatus = "CONFIRMED"
	OrderStatusShipped   MarketplaceOrderStatus = "SHIPPED"
	OrderStatusDelivered MarketplaceOrderStatus = "DELIVERED"
	OrderStatusCancelled MarketplaceOrderStatus = "CANCELLED"
	OrderStatusReturned  MarketplaceOrderStatus = "RETURNED"
	OrderStatusFailed    MarketplaceOrderStatus = "FAILED"
)

// ExcludedVelocityStatuses are never counted as demand.
func ExcludedVelocityStatuses() []MarketplaceOrderStatus {
	return []MarketplaceOrderStatus{OrderStatusCancelled, OrderStatusReturned, OrderStatusFailed}
}
