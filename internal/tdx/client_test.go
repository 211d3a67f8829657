package tdx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/wolfman30/thsr-fare-bot/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...func(*Config)) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	cfg := Config{
		BaseURL:     ts.URL,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		Logger:      logging.New("error"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresTokenSource(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://example.com"})
	require.Error(t, err)
}

func TestResolveStation_ByName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/Rail/THSR/Station", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "contains(StationName/Zh_tw, '台北')", q.Get("$filter"))
		assert.Equal(t, "30", q.Get("$top"))
		assert.Equal(t, "StationID,StationName", q.Get("$select"))
		assert.Equal(t, "JSON", q.Get("$format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"StationID":"1000","StationName":{"Zh_tw":"台北","En":"Taipei"}}]`))
	})

	st, err := client.ResolveStation(context.Background(), "台北")
	require.NoError(t, err)
	assert.Equal(t, "1000", st.StationID)
	assert.Equal(t, "台北", st.DisplayName())
}

func TestResolveStation_ByIDIsExactAndUncapped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "StationID eq '1010'", q.Get("$filter"))
		_, hasTop := q["$top"]
		assert.False(t, hasTop, "exact id lookup must not send $top")
		_, _ = w.Write([]byte(`[{"StationID":"1010","StationName":{"Zh_tw":"板橋","En":"Banqiao"}}]`))
	})

	st, err := client.ResolveStation(context.Background(), " 1010 ")
	require.NoError(t, err)
	assert.Equal(t, "1010", st.StationID)
	assert.Equal(t, "板橋", st.StationName.ZhTw)
}

func TestResolveStation_FirstRowWins(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"StationID":"0990","StationName":{"Zh_tw":"南港"}},
			{"StationID":"1000","StationName":{"Zh_tw":"台北"}}
		]`))
	})

	st, err := client.ResolveStation(context.Background(), "南")
	require.NoError(t, err)
	assert.Equal(t, "0990", st.StationID)
}

func TestResolveStation_SkipsRowsWithoutID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"StationName":{"Zh_tw":"台北"}},
			{"StationID":"1000","StationName":{"Zh_tw":"台北","En":"Taipei"}}
		]`))
	})

	st, err := client.ResolveStation(context.Background(), "台北")
	require.NoError(t, err)
	assert.Equal(t, "1000", st.StationID)
}

func TestResolveStation_OnlyRowsWithoutIDIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"StationName":{"Zh_tw":"台北","En":"Taipei"}}]`))
	})

	st, err := client.ResolveStation(context.Background(), "台北")
	assert.Nil(t, st)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveStation_FullWidthDigitsAreStationIDs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "StationID eq '1010'", q.Get("$filter"))
		_, hasTop := q["$top"]
		assert.False(t, hasTop)
		_, _ = w.Write([]byte(`[{"StationID":"1010","StationName":{"Zh_tw":"板橋"}}]`))
	})

	st, err := client.ResolveStation(context.Background(), "１０１０")
	require.NoError(t, err)
	assert.Equal(t, "1010", st.StationID)
}

func TestResolveStation_EscapesQuotes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "contains(StationName/Zh_tw, '台''北')", r.URL.Query().Get("$filter"))
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.ResolveStation(context.Background(), "台'北")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveStation_EmptyResultIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.ResolveStation(context.Background(), "火星")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsTransient(err))
}

func TestResolveStation_EmptyInputSkipsRequest(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.ResolveStation(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestResolveStation_HTTPErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream failed", http.StatusBadGateway)
	})

	_, err := client.ResolveStation(context.Background(), "台北")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.NotErrorIs(t, err, ErrNotFound)

	var te *TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
}

func TestResolveStation_InvalidJSONIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"StationID":`))
	})

	_, err := client.ResolveStation(context.Background(), "台北")
	assert.True(t, IsTransient(err))
}

func TestResolveStation_TimeoutIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}, func(cfg *Config) {
		cfg.Timeout = 20 * time.Millisecond
	})

	_, err := client.ResolveStation(context.Background(), "台北")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestResolveStation_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.ResolveStation(ctx, "台北")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, context.Canceled)
}

type failingTokenSource struct{}

func (failingTokenSource) Token() (*oauth2.Token, error) {
	return nil, errors.New("token endpoint unreachable")
}

func TestResolveStation_TokenFailureIsTransient(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, func(cfg *Config) {
		cfg.TokenSource = failingTokenSource{}
	})

	_, err := client.ResolveStation(context.Background(), "台北")
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestResolveStation_UsesCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	cache := NewRedisStationCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)

	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`[{"StationID":"1070","StationName":{"Zh_tw":"左營"}}]`))
	}, func(cfg *Config) {
		cfg.Cache = cache
	})

	ctx := context.Background()
	first, err := client.ResolveStation(ctx, "左營")
	require.NoError(t, err)
	second, err := client.ResolveStation(ctx, "左營")
	require.NoError(t, err)
	byID, err := client.ResolveStation(ctx, "1070")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "左營", byID.DisplayName())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResolveStation_CacheFailureFallsThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cache := NewRedisStationCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	mr.Close()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"StationID":"1000","StationName":{"Zh_tw":"台北"}}]`))
	}, func(cfg *Config) {
		cfg.Cache = cache
	})

	st, err := client.ResolveStation(context.Background(), "台北")
	require.NoError(t, err)
	assert.Equal(t, "1000", st.StationID)
}

const fareFixture = `[{
	"OriginStationName":{"Zh_tw":"板橋","En":"Banqiao"},
	"DestinationStationName":{"Zh_tw":"桃園","En":"Taoyuan"},
	"Fares":[
		{"TicketType":1,"FareClass":1,"CabinClass":2,"Price":505},
		{"TicketType":2,"FareClass":1,"CabinClass":1,"Price":320},
		{"TicketType":1,"FareClass":4,"CabinClass":1,"Price":80},
		{"TicketType":1,"FareClass":1,"CabinClass":1,"Price":160},
		{"TicketType":1,"FareClass":1,"CabinClass":3,"Price":155}
	]
}]`

func TestGetFare_FiltersClientSide(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Rail/THSR/ODFare/1010/to/1020", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Fares/any(f: f/CabinClass eq 1 and f/FareClass eq 1 and f/TicketType eq 1)", q.Get("$filter"))
		assert.Equal(t, "Fares,OriginStationName,DestinationStationName", q.Get("$select"))
		assert.Equal(t, "JSON", q.Get("$format"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(fareFixture))
	})

	price, err := client.GetFare(context.Background(), NewFareQuery("1010", "1020", CabinStandard))
	require.NoError(t, err)
	assert.Equal(t, 160, price)
}

func TestGetFare_OtherCabins(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fareFixture))
	})

	tests := []struct {
		cabin CabinClass
		want  int
	}{
		{CabinBusiness, 505},
		{CabinNonReserved, 155},
	}
	for _, tt := range tests {
		t.Run(tt.cabin.Label(), func(t *testing.T) {
			price, err := client.GetFare(context.Background(), NewFareQuery("1010", "1020", tt.cabin))
			require.NoError(t, err)
			assert.Equal(t, tt.want, price)
		})
	}
}

func TestGetFare_NoSurvivingRowIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Fares":[{"TicketType":2,"FareClass":1,"CabinClass":1,"Price":320}]}]`))
	})

	_, err := client.GetFare(context.Background(), NewFareQuery("1010", "1020", CabinStandard))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetFare_EmptyTableIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.GetFare(context.Background(), NewFareQuery("1010", "1020", CabinStandard))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetFare_HTTPErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	_, err := client.GetFare(context.Background(), NewFareQuery("1010", "1020", CabinStandard))
	assert.True(t, IsTransient(err))
}

func TestGetFare_RequiresStations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.GetFare(context.Background(), NewFareQuery("", "1020", CabinStandard))
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestGetFare_RejectsUnknownCabin(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.GetFare(context.Background(), NewFareQuery("1010", "1020", CabinClass(9)))
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestCabinClassLabels(t *testing.T) {
	assert.Equal(t, "標準座車廂", CabinStandard.Label())
	assert.Equal(t, "商務座車廂", CabinBusiness.Label())
	assert.Equal(t, "自由座車廂", CabinNonReserved.Label())
	assert.False(t, CabinClass(0).Valid())
	assert.True(t, CabinNonReserved.Valid())
}

func TestStationDisplayNameFallbacks(t *testing.T) {
	assert.Equal(t, "Taipei", Station{StationID: "1000", StationName: LocalizedName{En: "Taipei"}}.DisplayName())
	assert.Equal(t, "1000", Station{StationID: "1000"}.DisplayName())
}
