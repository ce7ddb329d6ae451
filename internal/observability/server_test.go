package observability

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"chainmesh/core/config"
	"chainmesh/core/eventbus"
	"chainmesh/core/jsonlog"
	"chainmesh/core/metrics"
	"chainmesh/core/sim"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	chains := []config.ChainConfig{
		{ChainID: "chain-A", ConsensusKind: config.PoW, NodeCount: 2, PowDifficulty: 1},
	}
	simCfg := config.DefaultSimulationConfig()
	simCfg.EnableContinuousTraffic = false
	simCfg.RelayerCount = 1

	dir := t.TempDir()
	logs, err := jsonlog.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { logs.Close() })

	ctrl := sim.New(chains, simCfg, metrics.Noop(), logs)
	require.NoError(t, ctrl.Init())
	return New(ctrl)
}

func TestStatsEndpointReportsCounts(t *testing.T) {
	s := testServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/stats", nil)
	s.handler().ServeHTTP(rr, req)

	var summary Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	require.Equal(t, Summary{ChainCount: 1, NodeCount: 2, RelayerCount: 1}, summary)
}

func TestChainsEndpointReportsHeight(t *testing.T) {
	s := testServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/chains", nil)
	s.handler().ServeHTTP(rr, req)

	var stats []ChainStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Len(t, stats, 1)
	require.Equal(t, "chain-A", stats[0].ChainID)
	require.EqualValues(t, 0, stats[0].Height)
}

func TestOnEventBroadcastsToNoClientsWithoutPanic(t *testing.T) {
	s := testServer(t)
	require.NotPanics(t, func() {
		s.onEvent(eventbus.Event{Kind: eventbus.BlockFinalized, ChainID: "chain-A", Detail: "block appended at height 1"})
	})
}
