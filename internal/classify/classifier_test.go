package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := New(nil)

	tests := []struct {
		title     string
		wantIcon  string
		wantLabel string
	}{
		{"Binance Will List Example (EXM)", "🚀", "New Listing"},
		{"Binance Will Add EXM on Earn, Convert & Margin", "💹", "Margin"},
		{"New Spot Trading Pairs: EXM/USDT", "💎", "Spot Trading Pairs"},
		{"Binance Futures Will Launch USDⓈ-Margined EXMUSDT Perpetual", "📈", "USDⓈ-M Futures"},
		{"Binance Will Delist ABC, DEF on 2024-06-10", "⚠️", "Delisting"},
		{"Notice on Wallet Maintenance for the Example Network", "🔧", "Wallet Maintenance"},
		{"币安将上线 EXM", "🚀", "New Listing"},
		{"关于下架 ABC 的公告", "⚠️", "Delisting"},
		{"Something entirely unrelated", DefaultIcon, DefaultLabel},
		{"", DefaultIcon, DefaultLabel},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			icon, label := c.Classify(tt.title)
			assert.Equal(t, tt.wantIcon, icon)
			assert.Equal(t, tt.wantLabel, label)
		})
	}
}

func TestClassify_CaseSensitive(t *testing.T) {
	icon, label := New(nil).Classify("binance will list exm")
	assert.Equal(t, DefaultIcon, icon)
	assert.Equal(t, DefaultLabel, label)
}

func TestClassify_ExtraRulesComeFirst(t *testing.T) {
	c := New([]Rule{
		{Keyword: "Will List", Icon: "🔥", Label: "Hot Listing"},
		{Keyword: ""},
		{Keyword: "Megadrop"},
	})

	icon, label := c.Classify("Binance Will List EXM")
	assert.Equal(t, "🔥", icon)
	assert.Equal(t, "Hot Listing", label)

	icon, label = c.Classify("Introducing EXM on Binance Megadrop")
	assert.Equal(t, DefaultIcon, icon)
	assert.Equal(t, DefaultLabel, label)

	assert.Len(t, c.Rules(), len(builtin)+2)
}

// A generic keyword must never shadow a more specific one below it.
func TestBuiltin_SpecificBeforeGeneric(t *testing.T) {
	for i, general := range builtin {
		for _, specific := range builtin[i+1:] {
			if specific.Keyword != general.Keyword && strings.Contains(specific.Keyword, general.Keyword) {
				t.Errorf("%q (pos %d) shadows %q", general.Keyword, i, specific.Keyword)
			}
		}
	}
}
