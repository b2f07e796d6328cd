// Package classify maps announcement titles to an icon and a type label.
package classify

import "strings"

const (
	DefaultIcon  = "ℹ️"
	DefaultLabel = "Announcement"
)

// Rule matches when Keyword is a case-sensitive substring of the title.
type Rule struct {
	Keyword string
	Icon    string
	Label   string
}

// builtin is evaluated top to bottom; longer, more specific keywords must
// stay above the generic ones they contain.
var builtin = []Rule{
	// listings
	{"New Fiat Listings", "💵", "Fiat Listing"},
	{"New Spot Trading Pairs", "💎", "Spot Trading Pairs"},
	{"New Trading Pairs", "💎", "Trading Pairs"},
	{"Will List", "🚀", "New Listing"},
	{"Introducing", "🚀", "New Listing"},
	{"上线", "🚀", "New Listing"},
	{"Binance Launchpad", "🚀", "Launchpad"},
	{"Launchpool", "🌱", "Launchpool"},
	{"Seed Sale", "🌱", "Seed Sale"},
	{"Mystery Box", "🎁", "Mystery Box"},
	{"Innovation Zone", "🔬", "Innovation Zone"},
	{"创新区", "🔬", "Innovation Zone"},
	{"Delisting", "⚠️", "Delisting"},
	{"Will Delist", "⚠️", "Delisting"},
	{"下架", "⚠️", "Delisting"},

	// trading products
	{"USDⓈ-M Futures", "📈", "USDⓈ-M Futures"},
	{"USDⓈ-Margined", "📈", "USDⓈ-M Futures"},
	{"COIN-M Futures", "📈", "COIN-M Futures"},
	{"Futures", "📈", "Futures"},
	{"期货", "📈", "Futures"},
	{"合约", "📈", "Futures"},
	{"Options", "📊", "Options"},
	{"期权", "📊", "Options"},
	{"Margin", "💹", "Margin"},
	{"杠杆", "💹", "Margin"},
	{"Spot", "💎", "Spot"},
	{"现货", "💎", "Spot"},
	{"Dual Investment", "💰", "Dual Investment"},
	{"Learn and Earn", "📚", "Learn and Earn"},
	{"学习赚币", "📚", "Learn and Earn"},
	{"Earn", "💰", "Earn"},
	{"赚币", "💰", "Earn"},
	{"Savings", "💰", "Savings"},
	{"Staking", "🏆", "Staking"},
	{"质押", "🏆", "Staking"},
	{"Liquid Swap", "🌊", "Liquid Swap"},
	{"流动性", "🌊", "Liquid Swap"},
	{"Convert", "🔄", "Convert"},
	{"兑换", "🔄", "Convert"},
	{"P2P", "👥", "P2P"},
	{"Fan Token", "🎭", "Fan Token"},
	{"粉丝币", "🎭", "Fan Token"},
	{"ETF", "📊", "ETF"},

	// platform
	{"Wallet Maintenance", "🔧", "Wallet Maintenance"},
	{"Maintenance", "🔧", "Maintenance"},
	{"维护", "🔧", "Maintenance"},
	{"System Upgrade", "🔧", "System Upgrade"},
	{"System Update", "🔧", "System Update"},
	{"API", "🔌", "API"},
	{"Security", "🔒", "Security"},
	{"安全", "🔒", "Security"},
	{"Risk Warning", "⚠️", "Risk Warning"},
	{"风险提示", "⚠️", "Risk Warning"},

	// campaigns
	{"Trading Competition", "🏅", "Trading Competition"},
	{"交易大赛", "🏅", "Trading Competition"},
	{"Airdrop", "🪂", "Airdrop"},
	{"空投", "🪂", "Airdrop"},
	{"Rewards", "🎁", "Rewards"},
	{"奖励", "🎁", "Rewards"},
	{"Campaign", "🎯", "Campaign"},
	{"活动", "🎯", "Campaign"},
	{"Promotion", "🎉", "Promotion"},
	{"促销", "🎉", "Promotion"},
	{"NFT", "🎨", "NFT"},
	{"VIP", "👑", "VIP"},
	{"Referral", "🤝", "Referral"},
	{"推荐", "🤝", "Referral"},
	{"Bonus", "🎁", "Bonus"},
	{"福利", "🎁", "Bonus"},

	// other
	{"Gift Card", "🎁", "Gift Card"},
	{"礼品卡", "🎁", "Gift Card"},
	{"Binance Pay", "💳", "Binance Pay"},
	{"支付", "💳", "Binance Pay"},
	{"Card", "💳", "Card"},
	{"信用卡", "💳", "Card"},
	{"Crypto Loans", "💰", "Crypto Loans"},
	{"借贷", "💰", "Crypto Loans"},
	{"Wallet", "👛", "Wallet"},
	{"钱包", "👛", "Wallet"},
	{"Fiat", "💵", "Fiat"},
	{"法币", "💵", "Fiat"},
	{"DeFi", "⛓️", "DeFi"},
	{"Update", "🔄", "Update"},
	{"更新", "🔄", "Update"},

	// generic
	{"Announcement", "📣", "Announcement"},
	{"公告", "📣", "Announcement"},
	{"Notice", "ℹ️", "Notice"},
	{"通知", "ℹ️", "Notice"},
}

type Classifier struct {
	rules []Rule
}

// New returns a classifier that tries extra before the built-in table.
// Extra rules with an empty keyword are ignored; a missing icon or label
// falls back to the defaults.
func New(extra []Rule) *Classifier {
	rules := make([]Rule, 0, len(extra)+len(builtin))
	for _, r := range extra {
		if r.Keyword == "" {
			continue
		}
		if r.Icon == "" {
			r.Icon = DefaultIcon
		}
		if r.Label == "" {
			r.Label = DefaultLabel
		}
		rules = append(rules, r)
	}
	rules = append(rules, builtin...)
	return &Classifier{rules: rules}
}

// Classify returns the icon and label of the first matching rule.
func (c *Classifier) Classify(title string) (icon, label string) {
	for _, r := range c.rules {
		if strings.Contains(title, r.Keyword) {
			return r.Icon, r.Label
		}
	}
	return DefaultIcon, DefaultLabel
}

// Rules returns a copy of the effective rule table.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}
