package robinhood

import "robinhood-tool-server/internal/profit"

// TokenResponse is the response from the OAuth token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	MFARequired  bool   `json:"mfa_required,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// Quote is the latest quote for a symbol. Prices are decimal strings.
type Quote struct {
	Symbol                      string `json:"symbol"`
	AskPrice                    string `json:"ask_price"`
	BidPrice                    string `json:"bid_price"`
	LastTradePrice              string `json:"last_trade_price"`
	LastExtendedHoursTradePrice string `json:"last_extended_hours_trade_price"`
	PreviousClose               string `json:"previous_close"`
	UpdatedAt                   string `json:"updated_at"`
	Instrument                  string `json:"instrument"`
}

// Fundamentals holds descriptive data about a stock.
type Fundamentals struct {
	Symbol        string `json:"symbol"`
	Description   string `json:"description"`
	Sector        string `json:"sector"`
	Industry      string `json:"industry"`
	MarketCap     string `json:"market_cap"`
	PERatio       string `json:"pe_ratio"`
	DividendYield string `json:"dividend_yield"`
	High52Weeks   string `json:"high_52_weeks"`
	Low52Weeks    string `json:"low_52_weeks"`
	Volume        string `json:"volume"`
}

// Instrument describes a tradable security.
type Instrument struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Symbol string `json:"symbol"`
	Name   string `json:"simple_name"`
	Quote  string `json:"quote"`
}

// Order is a stock order. It embeds the fields the profit analysis consumes.
type Order struct {
	profit.RawOrder
	URL                string `json:"url"`
	Type               string `json:"type"`
	Price              string `json:"price"`
	StopPrice          string `json:"stop_price"`
	CumulativeQuantity string `json:"cumulative_quantity"`
	TimeInForce        string `json:"time_in_force"`
	Trigger            string `json:"trigger"`
	ExtendedHours      bool   `json:"extended_hours"`
	UpdatedAt          string `json:"updated_at"`
	Symbol             string `json:"symbol,omitempty"`
}

// IsOpen reports whether the order can still be filled or cancelled.
func (o Order) IsOpen() bool {
	switch o.State {
	case "queued", "unconfirmed", "confirmed", "partially_filled", "pending":
		return true
	}
	return false
}

// OrderRequest describes a new stock order.
type OrderRequest struct {
	Symbol        string
	Side          string // OrderSideBuy or OrderSideSell
	Type          string // OrderTypeMarket or OrderTypeLimit
	Quantity      float64
	LimitPrice    float64 // required for limit orders
	TimeInForce   string  // gtc, gfd, ioc, opg
	ExtendedHours bool
}

// Account is a brokerage account.
type Account struct {
	URL           string `json:"url"`
	AccountNumber string `json:"account_number"`
	Cash          string `json:"cash"`
	BuyingPower   string `json:"buying_power"`
	Portfolio     string `json:"portfolio"`
}

// Portfolio is the current value summary of an account.
type Portfolio struct {
	Equity                  string `json:"equity"`
	ExtendedHoursEquity     string `json:"extended_hours_equity"`
	MarketValue             string `json:"market_value"`
	LastCoreEquity          string `json:"last_core_equity"`
	EquityPreviousClose     string `json:"equity_previous_close"`
	WithdrawableAmount      string `json:"withdrawable_amount"`
	ExcessMargin            string `json:"excess_margin"`
	StartDate               string `json:"start_date"`
	AdjustedEquityPrevClose string `json:"adjusted_equity_previous_close"`
}

// Position is a holding in a single instrument.
type Position struct {
	Instrument      string `json:"instrument"`
	Quantity        string `json:"quantity"`
	AverageBuyPrice string `json:"average_buy_price"`
	Symbol          string `json:"symbol,omitempty"`
}

// Dividend is a dividend payment record.
type Dividend struct {
	ID         string `json:"id"`
	Amount     string `json:"amount"`
	State      string `json:"state"`
	Instrument string `json:"instrument"`
	PaidAt     string `json:"paid_at"`
}

// EquityPoint is a single point of portfolio history.
type EquityPoint struct {
	BeginsAt            string `json:"begins_at"`
	CloseEquity         string `json:"close_equity"`
	AdjustedCloseEquity string `json:"adjusted_close_equity"`
	OpenEquity          string `json:"open_equity"`
}

// HistoricalPortfolio is the equity history of an account over a span.
type HistoricalPortfolio struct {
	Span              string        `json:"span"`
	Interval          string        `json:"interval"`
	EquityHistoricals []EquityPoint `json:"equity_historicals"`
	TotalReturn       struct {
		Percentage string `json:"percentage"`
	} `json:"total_return"`
}

// page is the envelope of paginated list endpoints.
type page[T any] struct {
	Next    string `json:"next"`
	Results []T    `json:"results"`
}
