package resy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/resy-sniper/internal/sniper"
)

const DefaultBaseURL = "https://api.resy.com"

// Client is a minimal Resy API client. It requires an API key and auth
// token captured from an authenticated browser session.
type Client struct {
	hc      *http.Client
	base    string
	creds   Credentials
	loc     *time.Location
	limiter *rate.Limiter

	// paymentID overrides the payment method returned by /3/details.
	paymentID int64
}

type Credentials struct {
	APIKey    string
	AuthToken string
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.base = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithLocation sets the venue timezone used to read slot times.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithPollRate caps availability polls to r per second. Claims are never
// limited.
func WithPollRate(r float64, burst int) Option {
	return func(c *Client) {
		if r > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

func WithPaymentMethod(id int64) Option {
	return func(c *Client) { c.paymentID = id }
}

func New(creds Credentials, opts ...Option) *Client {
	c := &Client{
		hc:      &http.Client{Timeout: 3 * time.Second},
		base:    DefaultBaseURL,
		creds:   creds,
		loc:     time.Local,
		limiter: rate.NewLimiter(rate.Limit(4), 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ sniper.Remote = (*Client)(nil)

func (c *Client) Ping(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/2/user", "", nil, nil, c.creds.AuthToken)
	if err != nil {
		return err
	}
	if status >= 400 {
		if msg := message(body); msg != "" {
			return fmt.Errorf("resy ping failed: %s (status=%d)", msg, status)
		}
		return fmt.Errorf("resy ping failed (status=%d)", status)
	}
	return nil
}

// ServerTime reads the Date header of a lightweight request. Its
// resolution is one second.
func (c *Client) ServerTime(ctx context.Context) (sniper.ServerTimestamp, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/2/config", "", nil, nil, c.creds.AuthToken)
	if err != nil {
		return sniper.ServerTimestamp{}, err
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return sniper.ServerTimestamp{}, err
	}
	_, _ = io.Copy(io.Discard, res.Body)
	res.Body.Close()

	raw := res.Header.Get("Date")
	if raw == "" {
		return sniper.ServerTimestamp{}, fmt.Errorf("resy: no Date header (status=%d)", res.StatusCode)
	}
	at, err := http.ParseTime(raw)
	if err != nil {
		return sniper.ServerTimestamp{}, fmt.Errorf("resy: parse Date header %q: %w", raw, err)
	}
	return sniper.ServerTimestamp{At: at, Resolution: time.Second}, nil
}

// ListSlots lists the open slots for the target's venue, day and party size
// with the given auth token, or the session's own when it is empty.
func (c *Client) ListSlots(ctx context.Context, t sniper.Target, authToken string) ([]sniper.Slot, error) {
	return c.findSlots(ctx, t.VenueID, t.DayString(), t.PartySize, authToken)
}

// FindSlots is ListSlots without a Target, using the session's auth token.
// An empty result means nothing is bookable yet.
func (c *Client) FindSlots(ctx context.Context, venueID, day string, partySize int) ([]sniper.Slot, error) {
	return c.findSlots(ctx, venueID, day, partySize, "")
}

func (c *Client) findSlots(ctx context.Context, venueID, day string, partySize int, authToken string) ([]sniper.Slot, error) {
	if authToken == "" {
		authToken = c.creds.AuthToken
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	params := map[string]string{
		"party_size": strconv.Itoa(partySize),
		"venue_id":   venueID,
		"day":        day,
		// deprecated but still required
		"lat":  "0",
		"long": "0",
	}
	status, body, err := c.do(ctx, http.MethodGet, "/4/find", "", params, nil, authToken)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized || status == 419:
		return nil, fmt.Errorf("%w: find slots (status=%d)", sniper.ErrUnauthorized, status)
	case status != http.StatusOK:
		return nil, fmt.Errorf("resy: find slots (status=%d)", status)
	}

	var res findResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("resy: decode find response: %w", err)
	}
	if len(res.Results.Venues) == 0 {
		return nil, nil
	}
	out := make([]sniper.Slot, 0, len(res.Results.Venues[0].Slots))
	for _, s := range res.Results.Venues[0].Slots {
		start, err := time.ParseInLocation(slotLayout, s.Date.Start, c.loc)
		if err != nil {
			continue
		}
		end, _ := time.ParseInLocation(slotLayout, s.Date.End, c.loc)
		out = append(out, sniper.Slot{
			Token:    s.Config.Token,
			Start:    start,
			End:      end,
			MinSize:  s.Size.Min,
			MaxSize:  s.Size.Max,
			Quantity: s.Quantity,
			Type:     s.Config.Type,
			TableID:  s.Config.ID.String(),
			Price:    s.Payment.DepositFee,
		})
	}
	return out, nil
}

// Claim books the slot behind token with the given auth token: it asks
// /3/details for a book token and then confirms through /3/book.
func (c *Client) Claim(ctx context.Context, token sniper.SlotToken, authToken string) (string, error) {
	bc := bookingConfig{Commit: 1, ConfigID: token.Value, Day: token.Day, PartySize: token.PartySize}
	jb, err := json.Marshal(bc)
	if err != nil {
		return "", err
	}
	status, body, err := c.do(ctx, http.MethodPost, "/3/details", "application/json", nil, jb, authToken)
	if err != nil {
		return "", &sniper.ClaimError{Reason: sniper.ReasonTransient, Err: err}
	}
	if err := claimStatus("details", status, body); err != nil {
		return "", err
	}
	var details detailsResponse
	if err := json.Unmarshal(body, &details); err != nil {
		return "", &sniper.ClaimError{Reason: sniper.ReasonTransient, Status: status, Err: fmt.Errorf("decode details: %w", err)}
	}
	if details.BookToken.Value == "" {
		return "", &sniper.ClaimError{Reason: sniper.ReasonStaleToken, Status: status, Err: errors.New("details returned no book token")}
	}

	form := url.Values{"book_token": {details.BookToken.Value}}
	if pid := c.paymentMethod(details); pid != 0 {
		pb, _ := json.Marshal(struct {
			ID int64 `json:"id"`
		}{ID: pid})
		form.Set("struct_payment_method", string(pb))
	}
	status, body, err = c.do(ctx, http.MethodPost, "/3/book", "application/x-www-form-urlencoded", nil, []byte(form.Encode()), authToken)
	if err != nil {
		return "", &sniper.ClaimError{Reason: sniper.ReasonTransient, Err: err}
	}
	if err := claimStatus("book", status, body); err != nil {
		return "", err
	}
	var booked bookResponse
	_ = json.Unmarshal(body, &booked)
	switch {
	case booked.ResyToken != "":
		return booked.ResyToken, nil
	case booked.ReservationID != 0:
		return strconv.FormatInt(booked.ReservationID, 10), nil
	}
	return "booked", nil
}

func (c *Client) paymentMethod(d detailsResponse) int64 {
	if c.paymentID != 0 {
		return c.paymentID
	}
	if len(d.User.PaymentMethods) != 0 {
		return d.User.PaymentMethods[0].ID
	}
	return 0
}

// claimStatus maps a non-2xx claim response to a *sniper.ClaimError.
func claimStatus(stage string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var reason sniper.Reason
	switch status {
	case http.StatusUnauthorized, 419:
		reason = sniper.ReasonUnauthorized
	case http.StatusTooManyRequests:
		reason = sniper.ReasonRateLimited
	case http.StatusBadRequest, http.StatusNotFound:
		reason = sniper.ReasonStaleToken
	case http.StatusConflict, http.StatusGone, http.StatusPreconditionFailed:
		reason = sniper.ReasonSlotGone
	default:
		reason = sniper.ReasonTransient
	}
	detail := stage
	if msg := message(body); msg != "" {
		detail = stage + ": " + msg
	}
	return &sniper.ClaimError{Reason: reason, Status: status, Err: errors.New(detail)}
}

// PaymentMethodID returns the user's default payment method, or the first
// one on file.
func (c *Client) PaymentMethodID(ctx context.Context) (int64, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/2/user", "", nil, nil, c.creds.AuthToken)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("resy: fetch user (status=%d)", status)
	}
	var u userResponse
	if err := json.Unmarshal(body, &u); err != nil {
		return 0, fmt.Errorf("resy: decode user: %w", err)
	}
	if len(u.PaymentMethods) == 0 {
		return 0, errors.New("resy: no payment method on file")
	}
	for _, pm := range u.PaymentMethods {
		if pm.IsDefault {
			return pm.ID, nil
		}
	}
	return u.PaymentMethods[0].ID, nil
}

type Venue struct {
	ID           string
	Name         string
	Slug         string
	Neighborhood string
	TimeZone     string
}

// Venue looks a venue up by the slug in its resy.com URL.
func (c *Client) Venue(ctx context.Context, slug, location string) (Venue, error) {
	if location == "" {
		location = "new-york-ny"
	}
	params := map[string]string{"url_slug": slug, "location": location}
	status, body, err := c.do(ctx, http.MethodGet, "/3/venue", "", params, nil, c.creds.AuthToken)
	if err != nil {
		return Venue{}, err
	}
	if status != http.StatusOK {
		return Venue{}, fmt.Errorf("resy: fetch venue %q (status=%d)", slug, status)
	}
	var v venueResponse
	if err := json.Unmarshal(body, &v); err != nil {
		return Venue{}, fmt.Errorf("resy: decode venue: %w", err)
	}
	id := v.ID.Resy.String()
	if id == "" || id == "0" {
		return Venue{}, fmt.Errorf("resy: venue %q not found", slug)
	}
	return Venue{
		ID:           id,
		Name:         v.Name,
		Slug:         v.URLSlug,
		Neighborhood: v.Location.Neighborhood,
		TimeZone:     v.Location.TimeZone,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, query map[string]string, body []byte, authToken string) (int, []byte, error) {
	req, err := c.newRequest(ctx, method, path, contentType, query, body, authToken)
	if err != nil {
		return 0, nil, err
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, contentType string, query map[string]string, body []byte, authToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Add("user-agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36")
	req.Header.Add("origin", "https://resy.com")
	req.Header.Add("referrer", "https://resy.com")
	req.Header.Add("x-origin", "https://resy.com")
	req.Header.Add("cache-control", "no-cache")
	if contentType != "" {
		req.Header.Add("content-type", contentType)
	}
	req.Header.Add("authorization", fmt.Sprintf(`ResyAPI api_key="%s"`, c.creds.APIKey))
	req.Header.Add("x-resy-auth-token", authToken)
	req.Header.Add("x-resy-universal-auth", authToken)
	if a, ok := sniper.AttemptFromContext(ctx); ok && a.ID != "" {
		req.Header.Add("x-request-id", a.ID)
	}

	if query != nil {
		q := req.URL.Query()
		for k, v := range query {
			q.Add(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	return req, nil
}

func message(body []byte) string {
	var r struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &r)
	return r.Message
}
