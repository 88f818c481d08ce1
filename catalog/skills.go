package catalog

import (
	"encoding/json"
	"net/http"
)

// The five launch skills.
var launchSkills = []Skill{
	{
		ID:              "whale-tracker",
		Name:            "Whale Tracker",
		Description:     "Monitor large STX transactions in real-time",
		LongDescription: "Track whale-sized STX movements across the Stacks blockchain. Get instant alerts on transactions above your threshold, including sender/receiver addresses, amounts, and block context. Perfect for traders, analysts, and automated agents watching market-moving flows.",
		Category:        CategoryAnalytics,
		PriceMicroSTX:   100_000,
		ExampleInput:    json.RawMessage(`{"timeframe":"24h","minAmount":100000,"limit":10}`),
		ExampleOutput:   json.RawMessage(`{"whale_moves":[{"tx_id":"0xabc123...","amount":"500000","from":"SP2X...","to":"SP3Y...","timestamp":1707580800,"block_height":150000}],"total_volume":"2500000","count":5,"timeframe":"24h"}`),
		Icon:            "Fish",
		Color:           "violet",
		Gradient:        "from-violet-500/20 to-indigo-500/20",
		DataSource:      "Hiro Stacks API",
		newInput:        newWhaleTrackerInput,
	},
	{
		ID:              "content-craft",
		Name:            "Content Craft",
		Description:     "AI-powered professional content rewriting",
		LongDescription: "Transform any text into polished, professional content using GPT-4. Choose your target tone (professional, casual, or technical) and get publication-ready copy back in seconds. Ideal for blog posts, marketing copy, documentation, or social media.",
		Category:        CategoryContent,
		PriceMicroSTX:   250_000,
		Method:          http.MethodPost,
		ExampleInput:    json.RawMessage(`{"text":"Our product is really good and helps people do stuff faster.","tone":"professional","maxLength":500}`),
		ExampleOutput:   json.RawMessage(`{"original":"Our product is really good and helps people do stuff faster.","rewritten":"Our platform delivers measurable productivity gains, enabling teams to accomplish more in less time with an intuitive, purpose-built workflow.","tone":"professional","word_count":22,"changes_summary":"Improved clarity, authority, and specificity"}`),
		Icon:            "PenTool",
		Color:           "orange",
		Gradient:        "from-orange-500/20 to-amber-500/20",
		DataSource:      "OpenAI GPT-4",
		newInput:        newContentCraftInput,
	},
	{
		ID:              "stacks-scout",
		Name:            "Stacks Scout",
		Description:     "Real-time Stacks blockchain analytics & metrics",
		LongDescription: "Get a comprehensive snapshot of the Stacks blockchain: TVL, active wallets, transaction volume, and block height, all in one call. Select the metrics you care about and the time window. Built for dashboards, research reports, and automated monitoring agents.",
		Category:        CategoryAnalytics,
		PriceMicroSTX:   500_000,
		ExampleInput:    json.RawMessage(`{"metrics":["block_height","transactions","active_wallets"],"timeframe":"24h"}`),
		ExampleOutput:   json.RawMessage(`{"block_height":150000,"transactions":{"count":50000,"volume":"2500000 STX"},"active_wallets":{"count":15000,"change_24h":"+8.2%"},"timestamp":1707580800}`),
		Icon:            "BarChart3",
		Color:           "emerald",
		Gradient:        "from-emerald-500/20 to-teal-500/20",
		DataSource:      "Hiro Stacks API",
		newInput:        newStacksScoutInput,
	},
	{
		ID:              "profile-pro",
		Name:            "Profile Pro",
		Description:     "AI-powered social profile audit & recommendations",
		LongDescription: "Submit any social profile URL and receive a detailed AI audit: engagement score, strengths, weaknesses, and actionable recommendations to grow your audience. Powered by GPT-4 analysis with platform-specific insights.",
		Category:        CategorySocial,
		PriceMicroSTX:   2_000_000,
		Method:          http.MethodPost,
		ExampleInput:    json.RawMessage(`{"profileUrl":"https://twitter.com/staborotechnerd","analysisDepth":"detailed"}`),
		ExampleOutput:   json.RawMessage(`{"profile":{"username":"staborotechnerd","platform":"twitter","followers":5000},"score":85,"strengths":["Consistent posting schedule","High engagement rate"],"weaknesses":["Limited use of hashtags","Bio could be clearer"],"suggestions":["Add 2-3 relevant hashtags per post","Update bio to highlight core expertise","Increase posting frequency to 2x/day"]}`),
		Icon:            "UserCheck",
		Color:           "pink",
		Gradient:        "from-pink-500/20 to-rose-500/20",
		DataSource:      "OpenAI GPT-4",
		newInput:        newProfileProInput,
	},
	{
		ID:              "meme-radar",
		Name:            "Meme Radar",
		Description:     "Trending crypto memes & sentiment detection",
		LongDescription: "Scan Twitter and Reddit for the hottest crypto memes in real-time. Get sentiment analysis (bullish/bearish), trending hashtags, popularity scores, and source tracking. Filter by Bitcoin, Stacks, DeFi, or catch everything. Great for social trading signals and community management.",
		Category:        CategorySocial,
		PriceMicroSTX:   100_000,
		ExampleInput:    json.RawMessage(`{"limit":10,"category":"all"}`),
		ExampleOutput:   json.RawMessage(`{"trending_memes":[{"title":"Number Go Up","description":"Bitcoin price celebration","sentiment":"bullish","popularity_score":95,"sources":["twitter","reddit"],"first_seen":1707580800}],"overall_sentiment":"bullish","trending_hashtags":["#Bitcoin","#HODL","#Stacks"],"timestamp":1707580800}`),
		Icon:            "Laugh",
		Color:           "yellow",
		Gradient:        "from-yellow-500/20 to-lime-500/20",
		DataSource:      "Social APIs",
		newInput:        newMemeRadarInput,
	},
}

// Default returns the launch catalog.
func Default() *Catalog {
	c, err := New(launchSkills...)
	if err != nil {
		panic("catalog: invalid launch skills: " + err.Error())
	}
	return c
}
