package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestChannelAllocationRule_Sane(t *testing.T) {
	cases := []struct {
		name    string
		rule    ChannelAllocationRule
		wantErr bool
	}{
		{
			name: "valid percentage",
			rule: ChannelAllocationRule{
				AllocationType:  AllocationPercentage,
				AllocationValue: decimal.NewFromInt(30),
				BufferType:      BufferNone,
			},
		},
		{
			name: "valid fixed with dynamic buffer",
			rule: ChannelAllocationRule{
				AllocationType:  AllocationFixed,
				AllocationValue: decimal.NewFromInt(50),
				BufferType:      BufferDynamic,
			},
		},
		{
			name: "unknown allocation type",
			rule: ChannelAllocationRule{
				AllocationType: AllocationType("WEIGHTED"),
				BufferType:     BufferNone,
			},
			wantErr: true,
		},
		{
			name: "unknown buffer type",
			rule: ChannelAllocationRule{
				AllocationType: AllocationUnlimited,
				BufferType:     BufferType("ELASTIC"),
			},
			wantErr: true,
		},
		{
			name: "negative allocation value",
			rule: ChannelAllocationRule{
				AllocationType:  AllocationFixed,
				AllocationValue: decimal.NewFromInt(-10),
				BufferType:      BufferNone,
			},
			wantErr: true,
		},
		{
			name: "negative buffer value",
			rule: ChannelAllocationRule{
				AllocationType: AllocationUnlimited,
				BufferType:     BufferFixed,
				BufferValue:    decimal.NewFromInt(-1),
			},
			wantErr: true,
		},
		{
			name: "percentage over 100",
			rule: ChannelAllocationRule{
				AllocationType:  AllocationPercentage,
				AllocationValue: decimal.NewFromInt(150),
				BufferType:      BufferNone,
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Sane()
			if tc.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestChannelTypeIsValid(t *testing.T) {
	for _, ch := range AllChannelTypes() {
		if !ch.IsValid() {
			t.Errorf("%s should be valid", ch)
		}
	}
	if ChannelType("EBAY").IsValid() {
		t.Error("unknown channel should be invalid")
	}
}
