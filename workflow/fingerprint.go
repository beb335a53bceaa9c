package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/models"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
	"github.com/shopspring/decimal"
)

type OrderLine struct {
	SkuCode   string          `json:"sku_code"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPayload is one inbound marketplace order as handed to the detector
// and the pull orchestrator by a channel adapter.
type OrderPayload struct {
	MarketplaceOrderId string                        `json:"marketplace_order_id"`
	CustomerPhone      string                        `json:"customer_phone"`
	CustomerEmail      string                        `json:"customer_email"`
	TotalAmount        decimal.Decimal               `json:"total_amount"`
	OrderDate          time.Time                     `json:"order_date"`
	Status             models.MarketplaceOrderStatus `json:"status"`
	Lines              []OrderLine                   `json:"lines"`
}

// OrderFingerprint hashes what a marketplace cannot quietly rewrite when it
// re-issues an order under a new identifier: who bought, how much, when, and
// exactly which lines. Line order does not matter; phone formatting does not
// matter (normalized to E.164).
func OrderFingerprint(p *OrderPayload) string {
	phone := utils.NormalizePhoneNumber(strings.TrimSpace(p.CustomerPhone), utils.CountryCode)
	email := strings.ToLower(strings.TrimSpace(p.CustomerEmail))

	lines := make([]string, 0, len(p.Lines))
	for _, line := range p.Lines {
		lines = append(lines, fmt.Sprintf("%s:%d", strings.TrimSpace(line.SkuCode), line.Quantity))
	}
	lines = utils.SortedStrings(lines)

	base := strings.Join([]string{
		phone,
		email,
		p.TotalAmount.StringFixed(2),
		p.OrderDate.UTC().Format("2006-01-02"),
		strings.Join(lines, ","),
	}, "|")

	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}
