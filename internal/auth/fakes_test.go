package auth

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	rec     *TokenRecord
	loadErr error
	saveErr error
	saves   []TokenRecord
}

func (s *memStore) Load(_ context.Context) (TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return TokenRecord{}, s.loadErr
	}
	if s.rec == nil {
		return TokenRecord{}, ErrNotFound
	}
	return *s.rec, nil
}

func (s *memStore) Save(_ context.Context, rec TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.rec = &rec
	s.saves = append(s.saves, rec)
	return nil
}

func (s *memStore) last() TokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rec
}

type exchangeResult struct {
	resp *ExchangeResponse
	err  error
}

// fakeExchanger replays queued results and records requests.
type fakeExchanger struct {
	mu       sync.Mutex
	results  []exchangeResult
	requests []ExchangeRequest
}

func (f *fakeExchanger) queue(resp *ExchangeResponse, err error) *fakeExchanger {
	f.results = append(f.results, exchangeResult{resp, err})
	return f
}

func (f *fakeExchanger) Exchange(_ context.Context, req ExchangeRequest) (*ExchangeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.results) == 0 {
		return &ExchangeResponse{AccessToken: "auto-access", RefreshToken: "auto-refresh"}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.resp, r.err
}

func (f *fakeExchanger) calls() []ExchangeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ExchangeRequest(nil), f.requests...)
}

// fakeAuthorizer returns a fixed code.
type fakeAuthorizer struct {
	code  string
	err   error
	block bool
	reqs  []AuthorizationRequest
}

func (f *fakeAuthorizer) Authorize(ctx context.Context, req AuthorizationRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.code, f.err
}

// fixedClock is a settable Clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(unix int64) *fixedClock {
	return &fixedClock{now: time.Unix(unix, 0)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testNow int64 = 1_700_000_000

// validRecord returns credentials that need no renewal at testNow.
func validRecord() TokenRecord {
	return TokenRecord{
		AccessToken:        "access",
		AccessTokenExpiry:  testNow + 1000,
		RefreshToken:       "refresh",
		RefreshTokenExpiry: testNow + 30*86400,
		ClientID:           "CONSUMERKEY",
		RedirectURI:        "http://localhost:8080/callback",
	}
}
