package rates

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBanxicoClientWithoutToken(t *testing.T) {
	assert.Nil(t, NewBanxicoClient("", " ", time.Second))
}

func TestBanxicoUSDCross(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Bmx-Token") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/series/SF43718/datos/2023-01-13/2023-01-13":
			fmt.Fprint(w, `{"bmx":{"series":[{"idSerie":"SF43718","datos":[{"fecha":"13/01/2023","dato":"18.8743"}]}]}}`)
		default:
			fmt.Fprint(w, `{"bmx":{"series":[{"idSerie":"SF43718","datos":[]}]}}`)
		}
	}))
	defer srv.Close()

	c := NewBanxicoClient(srv.URL, "secret", time.Second)
	require.NotNil(t, c)
	assert.Equal(t, "MXN", c.Currency())

	v, err := c.USDCross(context.Background(), day(t, "2023-01-13"))
	require.NoError(t, err)
	assert.InDelta(t, 18.8743, v, 1e-9)

	_, err = c.USDCross(context.Background(), day(t, "2023-01-14"))
	assert.Error(t, err)

	bad := NewBanxicoClient(srv.URL, "wrong", time.Second)
	_, err = bad.USDCross(context.Background(), day(t, "2023-01-13"))
	assert.Error(t, err)
}
