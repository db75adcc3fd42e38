package dto

// InsightRecommendation is the JSON object providers are asked to return.
type InsightRecommendation struct {
	Action      string  `json:"action"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// PolygonAggregatesResponse is the body of /v2/aggs/ticker/.../range/...
type PolygonAggregatesResponse struct {
	Ticker       string          `json:"ticker"`
	Status       string          `json:"status"`
	ResultsCount int             `json:"resultsCount"`
	Results      []PolygonResult `json:"results"`
	Error        string          `json:"error"`
	Message      string          `json:"message"`
}

type PolygonResult struct {
	Open         float64 `json:"o"`
	High         float64 `json:"h"`
	Low          float64 `json:"l"`
	Close        float64 `json:"c"`
	Volume       float64 `json:"v"`
	VWAP         float64 `json:"vw"`
	Transactions int64   `json:"n"`
	Timestamp    int64   `json:"t"`
}

// YahooChartResponse is the subset of /v8/finance/chart used for daily bars.
type YahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// OpenAIChatRequest and OpenAIChatResponse cover the chat completions endpoint.
type OpenAIChatRequest struct {
	Model          string              `json:"model"`
	Messages       []OpenAIChatMessage `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat map[string]string   `json:"response_format,omitempty"`
}

type OpenAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIChatResponse struct {
	Choices []struct {
		Message OpenAIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
