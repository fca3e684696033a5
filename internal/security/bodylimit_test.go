package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBodyLimit(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.EqualValues(t, len(data), r.ContentLength)
		_, _ = w.Write(data)
	})

	cases := []struct {
		name          string
		max           int64
		body          string
		contentLength int64
		code          int
	}{
		{name: "within limit", max: 32, body: `{"code":"SAVE10"}`, contentLength: -1, code: http.StatusOK},
		{name: "exactly at limit", max: 17, body: `{"code":"SAVE10"}`, contentLength: -1, code: http.StatusOK},
		{name: "streamed oversized", max: 5, body: "excessive", contentLength: -1, code: http.StatusRequestEntityTooLarge},
		{name: "declared oversized", max: 5, body: "content", contentLength: 100, code: http.StatusRequestEntityTooLarge},
		{name: "disabled", max: 0, body: strings.Repeat("x", 1024), contentLength: 1024, code: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/promo", strings.NewReader(tc.body))
			req.ContentLength = tc.contentLength
			rr := httptest.NewRecorder()
			BodyLimit{Max: tc.max}.Middleware(echo).ServeHTTP(rr, req)

			require.Equal(t, tc.code, rr.Code)
			if tc.code == http.StatusOK {
				require.Equal(t, tc.body, rr.Body.String())
				return
			}
			require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
		})
	}
}

func TestBodyLimitPassesEmptyBodies(t *testing.T) {
	rr := httptest.NewRecorder()
	BodyLimit{Max: 1}.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/cart/checkout", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
