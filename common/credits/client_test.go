package credits

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBalance(t *testing.T) {
	tests := map[string]struct {
		status      int
		body        string
		expected    *big.Rat
		shouldError bool
	}{
		"positive balance": {status: http.StatusOK, body: `{"balance":"12.5"}`, expected: big.NewRat(25, 2)},
		"zero balance":     {status: http.StatusOK, body: `{"balance":"0"}`, expected: new(big.Rat)},
		"null balance":     {status: http.StatusOK, body: `{"balance":null}`},
		"no record":        {status: http.StatusNotFound},
		"bad balance":      {status: http.StatusOK, body: `{"balance":"lots"}`, shouldError: true},
		"server error":     {status: http.StatusBadGateway, shouldError: true},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/credits/alice" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(test.status)
				w.Write([]byte(test.body))
			}))
			defer server.Close()

			balance, err := NewClient(server.URL, "alice", server.Client()).Balance(context.Background())
			if test.shouldError {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (balance == nil) != (test.expected == nil) || (balance != nil && balance.Cmp(test.expected) != 0) {
				t.Errorf("expected %v, got %v", test.expected, balance)
			}
		})
	}
}
