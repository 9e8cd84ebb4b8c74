package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.WalletCreated("create")
	m.WalletCreated("create")
	m.WalletCreated("import")
	m.TransferFinished("committed")
	m.AuthFailed("send")
	m.Limited("send")
	m.LedgerSubmitted("kafka", nil)
	m.LedgerSubmitted("kafka", errors.New("broker down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.WalletsCreated.WithLabelValues("create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WalletsCreated.WithLabelValues("import")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transfers.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthFailures.WithLabelValues("send")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited.WithLabelValues("send")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerSubmissions.WithLabelValues("kafka", "error")))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pvx_wallet_wallets_created_total")
}
