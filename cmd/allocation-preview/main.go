package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/models"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
	"bitbucket.org/mmdatafocus/channels_backend/workflow"
)

// Prints a SKU's allocation split without persisting or pushing anything.
// Support tool for "why is channel X showing quantity Y" questions.
func main() {
	companyID := flag.String("company-id", "", "Required: company id")
	skuID := flag.Int("sku-id", 0, "Required: sku id")
	flag.Parse()

	if strings.TrimSpace(*companyID) == "" || *skuID <= 0 {
		fmt.Fprintln(os.Stderr, "--company-id and --sku-id are required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetCompanyIdInContext(context.Background(), strings.TrimSpace(*companyID))

	sku, err := models.GetSKU(ctx, *skuID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sku lookup failed: %v\n", err)
		os.Exit(1)
	}

	avail, err := models.GetAvailableQuantity(ctx, sku.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "availability read failed: %v\n", err)
		os.Exit(1)
	}

	buffers := workflow.NewBufferCalculator(models.SalesVelocityService{})
	engine := workflow.NewAllocationEngine(models.ChannelRuleService{}, buffers)

	results, err := engine.Allocate(ctx, sku.ID, avail, models.AllChannelTypes())
	if err != nil {
		fmt.Fprintf(os.Stderr, "allocation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("SKU %s (id=%d) available=%d\n", sku.Code, sku.ID, avail)
	total := 0
	for _, ch := range models.AllChannelTypes() {
		r := results[ch]
		total += r.Allocated
		fmt.Printf("  %-10s raw=%-6d buffer=%-6d allocated=%-6d rule=%s priority=%d\n",
			ch, r.RawAllocation, r.Buffer, r.Allocated, r.RuleType, r.Priority)
	}
	fmt.Printf("  total allocated=%d\n", total)
}
