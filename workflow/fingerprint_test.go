package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/models"
	"github.com/shopspring/decimal"
)

func fingerprintPayload() OrderPayload {
	return OrderPayload{
		MarketplaceOrderId: "X-1",
		CustomerPhone:      "+919876543210",
		CustomerEmail:      "Buyer@Example.com",
		TotalAmount:        decimal.NewFromFloat(499.00),
		OrderDate:          time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		Status:             models.OrderStatusPending,
		Lines: []OrderLine{
			{SkuCode: "TSHIRT-M", Quantity: 2, UnitPrice: decimal.NewFromFloat(149.50)},
			{SkuCode: "CAP-BLK", Quantity: 1, UnitPrice: decimal.NewFromFloat(200.00)},
		},
	}
}

func TestOrderFingerprint_Deterministic(t *testing.T) {
	a := fingerprintPayload()
	b := fingerprintPayload()
	if OrderFingerprint(&a) != OrderFingerprint(&b) {
		t.Fatal("identical payloads must hash identically")
	}
}

func TestOrderFingerprint_LineOrderInsensitive(t *testing.T) {
	a := fingerprintPayload()
	b := fingerprintPayload()
	b.Lines[0], b.Lines[1] = b.Lines[1], b.Lines[0]

	if OrderFingerprint(&a) != OrderFingerprint(&b) {
		t.Fatal("line order must not change the fingerprint")
	}
}

func TestOrderFingerprint_NormalizesCustomerIdentity(t *testing.T) {
	a := fingerprintPayload()

	b := fingerprintPayload()
	b.CustomerEmail = "  buyer@example.com "
	b.CustomerPhone = "+91 98765 43210"

	if OrderFingerprint(&a) != OrderFingerprint(&b) {
		t.Fatal("email case and phone formatting must not change the fingerprint")
	}
}

func TestOrderFingerprint_IgnoresMarketplaceIdAndStatus(t *testing.T) {
	a := fingerprintPayload()

	// Same order re-issued under a new identifier with a changed status:
	// exactly the case the fingerprint fallback exists for.
	b := fingerprintPayload()
	b.MarketplaceOrderId = "X-1-RETRY"
	b.Status = models.OrderStatusConfirmed

	if OrderFingerprint(&a) != OrderFingerprint(&b) {
		t.Fatal("marketplace id and status must not change the fingerprint")
	}
}

func TestOrderFingerprint_DistinguishesRealDifferences(t *testing.T) {
	base := fingerprintPayload()

	changedQty := fingerprintPayload()
	changedQty.Lines[0].Quantity = 3

	changedAmount := fingerprintPayload()
	changedAmount.TotalAmount = decimal.NewFromFloat(999.00)

	changedDate := fingerprintPayload()
	changedDate.OrderDate = changedDate.OrderDate.AddDate(0, 0, 1)

	for name, other := range map[string]OrderPayload{
		"quantity": changedQty,
		"amount":   changedAmount,
		"date":     changedDate,
	} {
		if OrderFingerprint(&base) == OrderFingerprint(&other) {
			t.Errorf("different %s must produce a different fingerprint", name)
		}
	}
}

func TestOrderFingerprint_TimeOfDayIgnored(t *testing.T) {
	a := fingerprintPayload()
	b := fingerprintPayload()
	b.OrderDate = time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)

	if OrderFingerprint(&a) != OrderFingerprint(&b) {
		t.Fatal("same calendar day must hash identically regardless of time")
	}
}
