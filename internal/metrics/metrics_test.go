package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("/api/v1/contracts", 200)
		IncLink("minted")
		IncDelivery("notify_telegram", "completed")
		ObserveBotUpdate(15 * time.Millisecond)
	})
}

func TestIncContractOp(t *testing.T) {
	before := counterValue(t, contractOps.WithLabelValues("signed"))
	IncContractOp("signed")
	IncContractOp("signed")
	assert.Equal(t, before+2, counterValue(t, contractOps.WithLabelValues("signed")))
}

func TestIncHTTPStatusLabel(t *testing.T) {
	before := counterValue(t, httpRequests.WithLabelValues("/healthz", "503"))
	IncHTTP("/healthz", 503)
	assert.Equal(t, before+1, counterValue(t, httpRequests.WithLabelValues("/healthz", "503")))
}

func TestIncBotCommand(t *testing.T) {
	before := counterValue(t, botCommands.WithLabelValues("contrato", "ok"))
	IncBotCommand("contrato", "ok")
	assert.Equal(t, before+1, counterValue(t, botCommands.WithLabelValues("contrato", "ok")))
}
