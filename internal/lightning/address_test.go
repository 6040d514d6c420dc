package lightning

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAddress(t *testing.T) {
	user, domain, err := SplitAddress(" Alice@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "example.com", domain)

	for _, bad := range []string{"", "alice", "@example.com", "alice@", "a@b@c"} {
		_, _, err := SplitAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}

func TestAddressValidator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/.well-known/lnurlp/good":
			_, _ = w.Write([]byte(`{"tag":"payRequest","callback":"https://x/cb","minSendable":1000,"maxSendable":100000000,"metadata":"[]"}`))
		case "/.well-known/lnurlp/errored":
			_, _ = w.Write([]byte(`{"status":"ERROR","reason":"unknown user"}`))
		case "/.well-known/lnurlp/partial":
			_, _ = w.Write([]byte(`{"callback":"https://x/cb"}`))
		case "/.well-known/lnurlp/garbled":
			_, _ = w.Write([]byte(`<html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	v := NewAddressValidator(2 * time.Second)
	v.scheme = "http"

	ctx := context.Background()
	assert.NoError(t, v.Validate(ctx, "good@"+host))

	for _, user := range []string{"errored", "partial", "garbled", "missing"} {
		t.Run(user, func(t *testing.T) {
			assert.ErrorIs(t, v.Validate(ctx, user+"@"+host), ErrInvalidAddress)
		})
	}
}
