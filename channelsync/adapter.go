package channelsync

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/channels_backend/models"
	"bitbucket.org/mmdatafocus/channels_backend/workflow"
)

// OrderPage is one page of pulled orders plus the cursor to fetch the next.
type OrderPage struct {
	Orders     []workflow.OrderPayload
	NextCursor string
	HasMore    bool
}

// InventoryUpdate is one advised sellable quantity to push to a channel.
type InventoryUpdate struct {
	SkuCode  string
	Quantity int
}

// Adapter is one channel's wire protocol. Adapters translate marketplace
// payloads into workflow.OrderPayload and never touch the database; the
// worker owns persistence and ordering.
type Adapter interface {
	Channel() models.ChannelType
	FetchOrders(ctx context.Context, updatedSince string, cursor string) (OrderPage, error)
	PushInventory(ctx context.Context, updates []InventoryUpdate) error
}

// Registry maps channel to adapter. Built once at startup with explicit
// constructor calls; adapters never self-register through package init, so
// the set of live channels is visible in one place and testable with fakes.
type Registry map[models.ChannelType]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	reg := make(Registry, len(adapters))
	for _, a := range adapters {
		reg[a.Channel()] = a
	}
	return reg
}

func (r Registry) Adapter(channel models.ChannelType) (Adapter, error) {
	a, ok := r[channel]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for channel %s", channel)
	}
	return a, nil
}

// BuildRegistry wires every supported marketplace adapter against one
// connection's credentials. D2C has no adapter: own-storefront orders enter
// through the regular order API, not a pull sync.
func BuildRegistry(apiKey string) (Registry, error) {
	amazon, err := newAmazonAdapter(apiKey)
	if err != nil {
		return nil, err
	}
	flipkart, err := newFlipkartAdapter(apiKey)
	if err != nil {
		return nil, err
	}
	shopify, err := newShopifyAdapter(apiKey)
	if err != nil {
		return nil, err
	}
	return NewRegistry(amazon, flipkart, shopify), nil
}
