package tdapi

// Quote is the subset of quote fields shared by equities and options.
type Quote struct {
	AssetType     string  `json:"assetType"`
	AssetMainType string  `json:"assetMainType"`
	Symbol        string  `json:"symbol"`
	Description   string  `json:"description"`
	BidPrice      float64 `json:"bidPrice"`
	BidSize       int64   `json:"bidSize"`
	AskPrice      float64 `json:"askPrice"`
	AskSize       int64   `json:"askSize"`
	LastPrice     float64 `json:"lastPrice"`
	OpenPrice     float64 `json:"openPrice"`
	HighPrice     float64 `json:"highPrice"`
	LowPrice      float64 `json:"lowPrice"`
	ClosePrice    float64 `json:"closePrice"`
	NetChange     float64 `json:"netChange"`
	TotalVolume   int64   `json:"totalVolume"`
	Mark          float64 `json:"mark"`
	Exchange      string  `json:"exchangeName"`
	Delayed       bool    `json:"delayed"`
}

// Candle is one bar of price history.
type Candle struct {
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume"`
	Datetime int64   `json:"datetime"`
}

// PriceHistory is the response of the price history endpoint.
type PriceHistory struct {
	Symbol  string   `json:"symbol"`
	Empty   bool     `json:"empty"`
	Candles []Candle `json:"candles"`
}

// StreamerInfo carries the streaming server coordinates and credentials.
type StreamerInfo struct {
	StreamerBinaryURL string `json:"streamerBinaryUrl"`
	StreamerSocketURL string `json:"streamerSocketUrl"`
	Token             string `json:"token"`
	TokenTimestamp    string `json:"tokenTimestamp"`
	UserGroup         string `json:"userGroup"`
	AccessLevel       string `json:"accessLevel"`
	ACL               string `json:"acl"`
	AppID             string `json:"appId"`
}

// PrincipalAccount is an account entry of the user principals response.
type PrincipalAccount struct {
	AccountID         string `json:"accountId"`
	Description       string `json:"description"`
	DisplayName       string `json:"displayName"`
	AccountCdDomainID string `json:"accountCdDomainId"`
	Company           string `json:"company"`
	Segment           string `json:"segment"`
	ACL               string `json:"acl"`
}

// SubscriptionKey is a streamer subscription key.
type SubscriptionKey struct {
	Key string `json:"key"`
}

// UserPrincipals describes the authenticated user.
type UserPrincipals struct {
	UserID                   string        `json:"userId"`
	UserCdDomainID           string        `json:"userCdDomainId"`
	PrimaryAccountID         string        `json:"primaryAccountId"`
	LastLoginTime            string        `json:"lastLoginTime"`
	TokenExpirationTime      string        `json:"tokenExpirationTime"`
	LoginTime                string        `json:"loginTime"`
	AccessLevel              string        `json:"accessLevel"`
	StalePassword            bool          `json:"stalePassword"`
	StreamerInfo             *StreamerInfo `json:"streamerInfo,omitempty"`
	ProfessionalStatus       string        `json:"professionalStatus"`
	StreamerSubscriptionKeys *struct {
		Keys []SubscriptionKey `json:"keys"`
	} `json:"streamerSubscriptionKeys,omitempty"`
	Accounts []PrincipalAccount `json:"accounts"`
}

// Balances is the subset of account balances shown by the CLI.
type Balances struct {
	CashBalance     float64 `json:"cashBalance"`
	LiquidationVal  float64 `json:"liquidationValue"`
	LongMarketValue float64 `json:"longMarketValue"`
	BuyingPower     float64 `json:"buyingPower"`
}

// Position is a holding in a securities account.
type Position struct {
	LongQuantity  float64 `json:"longQuantity"`
	ShortQuantity float64 `json:"shortQuantity"`
	AveragePrice  float64 `json:"averagePrice"`
	MarketValue   float64 `json:"marketValue"`
	Instrument    struct {
		AssetType string `json:"assetType"`
		Symbol    string `json:"symbol"`
	} `json:"instrument"`
}

// SecuritiesAccount is a brokerage account.
type SecuritiesAccount struct {
	Type            string     `json:"type"`
	AccountID       string     `json:"accountId"`
	RoundTrips      int        `json:"roundTrips"`
	IsDayTrader     bool       `json:"isDayTrader"`
	Positions       []Position `json:"positions,omitempty"`
	CurrentBalances *Balances  `json:"currentBalances,omitempty"`
}

// AccountEnvelope wraps each account in the accounts response.
type AccountEnvelope struct {
	SecuritiesAccount SecuritiesAccount `json:"securitiesAccount"`
}

// Hours is an open/close interval.
type Hours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// MarketHours describes one product's trading session for a date.
type MarketHours struct {
	Category     string             `json:"category"`
	Date         string             `json:"date"`
	Exchange     string             `json:"exchange"`
	IsOpen       bool               `json:"isOpen"`
	MarketType   string             `json:"marketType"`
	Product      string             `json:"product"`
	ProductName  string             `json:"productName"`
	SessionHours map[string][]Hours `json:"sessionHours"`
}
