package tdapi

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// GetQuote retrieves the quote for a single symbol. The symbol is
// converted to wire format first, so ".AAPL210528C126" works.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	parsed, err := ClassifySymbol(symbol)
	if err != nil {
		return nil, err
	}
	if parsed.Wire == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	path := fmt.Sprintf("/marketdata/%s/quotes", url.PathEscape(parsed.Wire))
	resp, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(resp); err != nil {
		return nil, err
	}

	var quotes map[string]Quote
	if err := DecodeJSON(resp, &quotes); err != nil {
		return nil, err
	}

	q, ok := quotes[parsed.Wire]
	if !ok {
		return nil, &APIError{StatusCode: 404, Message: "no quote returned for " + parsed.Wire}
	}
	return &q, nil
}

// GetQuotes retrieves quotes for several symbols, keyed by wire symbol.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}

	wire, err := ParseSymbols(symbols)
	if err != nil {
		return nil, err
	}

	resp, err := c.GetWithParams(ctx, "/marketdata/quotes", map[string]string{
		"symbol": strings.Join(wire, ","),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(resp); err != nil {
		return nil, err
	}

	var quotes map[string]Quote
	if err := DecodeJSON(resp, &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// PeriodType is the unit of a price history period.
type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodMonth PeriodType = "month"
	PeriodYear  PeriodType = "year"
	PeriodYTD   PeriodType = "ytd"
)

// FrequencyType is the unit of a price history bar.
type FrequencyType string

const (
	FrequencyMinute  FrequencyType = "minute"
	FrequencyDaily   FrequencyType = "daily"
	FrequencyWeekly  FrequencyType = "weekly"
	FrequencyMonthly FrequencyType = "monthly"
)

var (
	validPeriods = map[PeriodType][]int{
		PeriodDay:   {1, 2, 3, 4, 5, 10},
		PeriodMonth: {1, 2, 3, 6},
		PeriodYear:  {1, 2, 3, 5, 10, 15, 20},
		PeriodYTD:   {1},
	}
	validFrequencyTypes = map[PeriodType][]FrequencyType{
		PeriodDay:   {FrequencyMinute},
		PeriodMonth: {FrequencyDaily, FrequencyWeekly},
		PeriodYear:  {FrequencyDaily, FrequencyWeekly, FrequencyMonthly},
		PeriodYTD:   {FrequencyDaily, FrequencyWeekly},
	}
	validMinuteFrequencies = []int{1, 5, 10, 15, 30}
)

// PriceHistoryOptions selects the bars returned by GetPriceHistory.
// Either Period or the StartDate/EndDate pair is used; dates win when both
// are set.
type PriceHistoryOptions struct {
	PeriodType            PeriodType
	Period                int
	FrequencyType         FrequencyType
	Frequency             int
	StartDate             time.Time
	EndDate               time.Time
	NeedExtendedHoursData bool
}

func (o PriceHistoryOptions) usesDates() bool {
	return !o.StartDate.IsZero() || !o.EndDate.IsZero()
}

// Validate checks the period/frequency combination the API accepts.
func (o PriceHistoryOptions) Validate() error {
	periods, ok := validPeriods[o.PeriodType]
	if !ok {
		return fmt.Errorf("invalid period type %q", o.PeriodType)
	}

	if o.usesDates() {
		if o.StartDate.IsZero() || o.EndDate.IsZero() {
			return fmt.Errorf("both start and end date are required")
		}
		if !o.StartDate.Before(o.EndDate) {
			return fmt.Errorf("end date must be after start date")
		}
	} else if !slices.Contains(periods, o.Period) {
		return fmt.Errorf("period type %q does not allow period %d", o.PeriodType, o.Period)
	}

	if !slices.Contains(validFrequencyTypes[o.PeriodType], o.FrequencyType) {
		return fmt.Errorf("period type %q does not allow frequency type %q", o.PeriodType, o.FrequencyType)
	}

	if o.FrequencyType == FrequencyMinute {
		if !slices.Contains(validMinuteFrequencies, o.Frequency) {
			return fmt.Errorf("frequency type %q does not allow frequency %d", o.FrequencyType, o.Frequency)
		}
	} else if o.Frequency != 1 {
		return fmt.Errorf("frequency type %q does not allow frequency %d", o.FrequencyType, o.Frequency)
	}

	return nil
}

// Params renders the options as query parameters.
func (o PriceHistoryOptions) Params() map[string]string {
	params := map[string]string{
		"periodType":            string(o.PeriodType),
		"frequencyType":         string(o.FrequencyType),
		"frequency":             strconv.Itoa(o.Frequency),
		"needExtendedHoursData": strconv.FormatBool(o.NeedExtendedHoursData),
	}
	if o.usesDates() {
		params["startDate"] = strconv.FormatInt(o.StartDate.UnixMilli(), 10)
		params["endDate"] = strconv.FormatInt(o.EndDate.UnixMilli(), 10)
	} else {
		params["period"] = strconv.Itoa(o.Period)
	}
	return params
}

// GetPriceHistory retrieves candles for a symbol.
func (c *Client) GetPriceHistory(ctx context.Context, symbol string, opts PriceHistoryOptions) (*PriceHistory, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	parsed, err := ClassifySymbol(symbol)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/marketdata/%s/pricehistory", url.PathEscape(parsed.Wire))
	resp, err := c.GetWithParams(ctx, path, opts.Params())
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(resp); err != nil {
		return nil, err
	}

	var history PriceHistory
	if err := DecodeJSON(resp, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// GetMarketHours retrieves trading hours for the given markets on date.
// The response is keyed by market, then by product.
func (c *Client) GetMarketHours(ctx context.Context, markets []string, date time.Time) (map[string]map[string]MarketHours, error) {
	if len(markets) == 0 {
		return nil, fmt.Errorf("at least one market is required")
	}

	params := map[string]string{"date": date.Format("2006-01-02")}
	path := "/marketdata/hours"
	if len(markets) == 1 {
		path = fmt.Sprintf("/marketdata/%s/hours", url.PathEscape(strings.ToUpper(markets[0])))
	} else {
		params["markets"] = strings.ToUpper(strings.Join(markets, ","))
	}

	resp, err := c.GetWithParams(ctx, path, params)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(resp); err != nil {
		return nil, err
	}

	var hours map[string]map[string]MarketHours
	if err := DecodeJSON(resp, &hours); err != nil {
		return nil, err
	}
	return hours, nil
}
