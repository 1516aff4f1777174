package rates

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nbsListID = "0c1f5c4e-8f5e-4b63-9d7a-2a2f3c1b9e10"

const nbsXML = `<?xml version="1.0" encoding="utf-8"?>
<ExchangeRatesList>
  <item><Date>16.07.2020</Date><Code>978</Code><Currency>EUR</Currency><Unit>1</Unit><Middle_Rate>117.5950</Middle_Rate></item>
  <item><Date>16.07.2020</Date><Code>392</Code><Currency>JPY</Currency><Unit>100</Unit><Middle_Rate>96.2500</Middle_Rate></item>
  <item><Date>16.07.2020</Date><Code>840</Code><Currency>USD</Currency><Unit>1</Unit><Middle_Rate>103.0902</Middle_Rate></item>
</ExchangeRatesList>`

func newNBSServer(t *testing.T, indexHits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ExchangeRateWebApp/ExchangeRate/IndexByDate", func(w http.ResponseWriter, r *http.Request) {
		if indexHits != nil {
			atomic.AddInt32(indexHits, 1)
		}
		if r.URL.Query().Get("Date") != "16.07.2020" {
			fmt.Fprint(w, "<html><body>No list</body></html>")
			return
		}
		fmt.Fprintf(w, `<html><body><a href="/ExchangeRateWebApp/ExchangeRate/Download?ExchangeRateListID=%s&amp;LanguageID=2&amp;Format=xml">XML</a></body></html>`, nbsListID)
	})
	mux.HandleFunc("/ExchangeRateWebApp/ExchangeRate/Download", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ExchangeRateListID") != nbsListID || r.URL.Query().Get("Format") != "xml" {
			http.Error(w, "bad list", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, nbsXML)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNBSClientRate(t *testing.T) {
	srv := newNBSServer(t, nil)
	c := NewNBSClient(NBSConfig{BaseURL: srv.URL, Timeout: time.Second})
	d := day(t, "2020-07-16")

	v, err := c.Rate(context.Background(), d, "EUR")
	require.NoError(t, err)
	assert.InDelta(t, 117.595, v, 1e-9)

	// scaled by Unit
	v, err = c.Rate(context.Background(), d, "JPY")
	require.NoError(t, err)
	assert.InDelta(t, 0.9625, v, 1e-9)

	_, err = c.Rate(context.Background(), d, "CHF")
	assert.Error(t, err)
}

func TestNBSClientMissingList(t *testing.T) {
	srv := newNBSServer(t, nil)
	c := NewNBSClient(NBSConfig{BaseURL: srv.URL, Timeout: time.Second})

	_, err := c.Rate(context.Background(), day(t, "2020-07-18"), "EUR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "link not found")
}

func TestNBSClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := NewNBSClient(NBSConfig{BaseURL: srv.URL, Timeout: time.Second})

	_, err := c.Rate(context.Background(), day(t, "2020-07-16"), "EUR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNBSClientHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)
	c := NewNBSClient(NBSConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Rate(ctx, day(t, "2020-07-16"), "EUR")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNBSClientSharedFetchSurvivesCancelledCaller(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	upstream := newNBSServer(t, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ExchangeRateWebApp/ExchangeRate/IndexByDate" {
			atomic.AddInt32(&hits, 1)
			<-release
		}
		upstream.Config.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	c := NewNBSClient(NBSConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	d := day(t, "2020-07-16")

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Rate(firstCtx, d, "EUR")
		first <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		rate float64
		err  error
	}
	second := make(chan result, 1)
	go func() {
		v, err := c.Rate(context.Background(), d, "USD")
		second <- result{v, err}
	}()
	// let the second caller join the fetch in flight
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.InDelta(t, 103.0902, got.rate, 1e-9)
}

func TestNBSClientThroughTriangulator(t *testing.T) {
	var hits int32
	srv := newNBSServer(t, &hits)
	tr := New(NewNBSClient(NBSConfig{BaseURL: srv.URL, Timeout: time.Second, RequestsPerSecond: 100}), WithCache(NewMemoryCache()))
	d := day(t, "2020-07-16")

	v, err := tr.Rate(context.Background(), d, "SGD")
	require.NoError(t, err)
	assert.InDelta(t, 103.0902, v, 1e-9)

	_, err = tr.Rate(context.Background(), d, "USD")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
