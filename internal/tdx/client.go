package tdx

import (
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/text/width"

	"github.com/wolfman30/thsr-fare-bot/pkg/logging"
)

const (
	DefaultBaseURL = "https://tdx.transportdata.tw/api/basic/v2"
	// DefaultTimeout bounds every TDX request, token requests included.
	DefaultTimeout = 10 * time.Second

	// stationSearchLimit caps name searches; exact id lookups are uncapped.
	stationSearchLimit = 30
)

// Config holds configuration for the TDX client.
type Config struct {
	BaseURL     string
	TokenSource oauth2.TokenSource
	Timeout     time.Duration
	HTTPClient  *http.Client
	Cache       StationCache
	Logger      *logging.Logger
	Tracer      trace.Tracer
}

// Client queries THSR station and fare data. A bearer token is requested
// from the token source for every call; a 401 is not retried.
type Client struct {
	baseURL    string
	tokens     oauth2.TokenSource
	httpClient *http.Client
	cache      StationCache
	logger     *logging.Logger
	tracer     trace.Tracer
}

// NewClient creates a TDX client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.TokenSource == nil {
		return nil, fmt.Errorf("tdx: TokenSource is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("thsr.internal.tdx")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     cfg.TokenSource,
		httpClient: httpClient,
		cache:      cfg.Cache,
		logger:     logger,
		tracer:     tracer,
	}, nil
}

// ResolveStation maps a station id or a partial Chinese station name to a
// station record. All-digit input is matched exactly against StationID;
// anything else is a containment match on StationName/Zh_tw and the first
// of at most 30 rows wins.
func (c *Client) ResolveStation(ctx context.Context, input string) (*Station, error) {
	ctx, span := c.tracer.Start(ctx, "tdx.resolve_station")
	defer span.End()

	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrNotFound
	}
	if narrow := width.Narrow.String(input); isStationID(narrow) {
		input = narrow
	}
	span.SetAttributes(attribute.String("tdx.station_input", input))

	if st := c.cachedStation(ctx, input); st != nil {
		span.SetAttributes(attribute.Bool("tdx.cache_hit", true))
		return st, nil
	}

	params := url.Values{}
	params.Set("$select", "StationID,StationName")
	params.Set("$format", "JSON")
	if isStationID(input) {
		params.Set("$filter", fmt.Sprintf("StationID eq '%s'", odataLiteral(input)))
	} else {
		params.Set("$filter", fmt.Sprintf("contains(StationName/Zh_tw, '%s')", odataLiteral(input)))
		params.Set("$top", strconv.Itoa(stationSearchLimit))
	}

	var stations []Station
	if err := c.getJSON(ctx, "resolve station", "/Rail/THSR/Station", params, &stations); err != nil {
		span.RecordError(err)
		return nil, err
	}
	st, ok := firstWithID(stations)
	if !ok {
		return nil, ErrNotFound
	}
	c.storeStation(ctx, input, &st)
	if st.StationID != input {
		c.storeStation(ctx, st.StationID, &st)
	}
	return &st, nil
}

// GetFare returns the price of the first fare row matching the query's
// cabin class, fare class and ticket type. The server filters with the same
// predicate but can return rows matching only part of it, so rows are
// filtered again here.
func (c *Client) GetFare(ctx context.Context, q FareQuery) (int, error) {
	ctx, span := c.tracer.Start(ctx, "tdx.get_fare")
	defer span.End()

	if q.OriginStationID == "" || q.DestinationStationID == "" {
		return 0, fmt.Errorf("tdx: fare query requires origin and destination")
	}
	if !q.CabinClass.Valid() {
		return 0, fmt.Errorf("tdx: unknown cabin class %d", int(q.CabinClass))
	}
	span.SetAttributes(
		attribute.String("tdx.origin", q.OriginStationID),
		attribute.String("tdx.destination", q.DestinationStationID),
		attribute.Int("tdx.cabin_class", int(q.CabinClass)),
	)

	path := fmt.Sprintf("/Rail/THSR/ODFare/%s/to/%s",
		url.PathEscape(q.OriginStationID), url.PathEscape(q.DestinationStationID))

	params := url.Values{}
	params.Set("$select", "Fares,OriginStationName,DestinationStationName")
	params.Set("$filter", fmt.Sprintf(
		"Fares/any(f: f/CabinClass eq %d and f/FareClass eq %d and f/TicketType eq %d)",
		int(q.CabinClass), q.FareClass, q.TicketType))
	params.Set("$format", "JSON")

	var tables []ODFare
	if err := c.getJSON(ctx, "get fare", path, params, &tables); err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(tables) == 0 {
		return 0, ErrNotFound
	}
	for _, fare := range tables[0].Fares {
		if fare.matches(q) {
			return fare.Price, nil
		}
	}
	return 0, ErrNotFound
}

func (c *Client) getJSON(ctx context.Context, op, path string, params url.Values, out any) error {
	token, err := c.tokens.Token()
	if err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("access token: %w", err)}
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("tdx API non-2xx response", "status", resp.StatusCode, "path", path, "body", msg)
		return &TransientError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) cachedStation(ctx context.Context, key string) *Station {
	if c.cache == nil {
		return nil
	}
	st, err := c.cache.GetStation(ctx, key)
	if err != nil {
		c.logger.Warn("tdx station cache read failed", "key", key, "error", err)
		return nil
	}
	return st
}

func (c *Client) storeStation(ctx context.Context, key string, st *Station) {
	if c.cache == nil {
		return
	}
	if err := c.cache.PutStation(ctx, key, st); err != nil {
		c.logger.Warn("tdx station cache write failed", "key", key, "error", err)
	}
}

// firstWithID returns the first row carrying a station id; rows without one
// cannot be used in a fare query.
func firstWithID(stations []Station) (Station, bool) {
	for _, st := range stations {
		if strings.TrimSpace(st.StationID) != "" {
			return st, true
		}
	}
	return Station{}, false
}

func isStationID(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// odataLiteral escapes a value for use inside a quoted OData string literal.
func odataLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
