package model

// External services tracked by the usage monitor.
const (
	ServiceAnthropic = "anthropic"
	ServiceFirecrawl = "firecrawl"
	ServiceTavily    = "tavily"
)

// UsageCounter is one service's consumption for one UTC day.
type UsageCounter struct {
	Service      string `json:"service"`
	UsageDate    string `json:"usage_date"`
	RequestsUsed int64  `json:"requests_used"`
	TokensUsed   int64  `json:"tokens_used"`
}
