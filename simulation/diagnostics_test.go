package simulation

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnostics_SaveLoad(t *testing.T) {
	cfg := testConfig(4)
	cfg.RecordArmStats = true
	diag, err := Run(cfg, randomInputs(20, 2, 3, 21))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, diag.Save(&buf))

	loaded, err := LoadDiagnostics(&buf)
	require.NoError(t, err)
	assert.Equal(t, diag.RunID, loaded.RunID)
	assert.Equal(t, diag.Config, loaded.Config)
	require.Len(t, loaded.Records, 4)
	assert.Equal(t, diag.Records[3].LinUCB, loaded.Records[3].LinUCB)
	assert.Equal(t, diag.Records[3].ArmStats, loaded.Records[3].ArmStats)

	s, err := loaded.Records[3].ArmStats[0].Statistics()
	require.NoError(t, err)
	assert.NoError(t, s.CheckPositiveDefinite())
}

func TestLoadDiagnostics_Rejects(t *testing.T) {
	diag, err := Run(testConfig(2), randomInputs(5, 1, 2, 22))
	require.NoError(t, err)

	encode := func(state diagnosticsState) *bytes.Buffer {
		var buf bytes.Buffer
		require.NoError(t, gob.NewEncoder(&buf).Encode(state))
		return &buf
	}

	tests := []struct {
		name  string
		state func() diagnosticsState
	}{
		{"unknown version", func() diagnosticsState {
			return diagnosticsState{Version: 99, Diag: *diag}
		}},
		{"missing round", func() diagnosticsState {
			d := *diag
			d.Records = d.Records[:1]
			return diagnosticsState{Version: diagnosticsVersion, Diag: d}
		}},
		{"short user data", func() diagnosticsState {
			d := *diag
			d.Records = append([]RoundRecord(nil), d.Records...)
			d.Records[1].Random.Rewards = d.Records[1].Random.Rewards[:2]
			return diagnosticsState{Version: diagnosticsVersion, Diag: d}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDiagnostics(encode(tt.state()))
			assert.Error(t, err)
		})
	}

	_, err = LoadDiagnostics(bytes.NewReader([]byte("not gob")))
	assert.Error(t, err)
}

func TestArmSnapshot_StatisticsRejectsBadLength(t *testing.T) {
	_, err := ArmSnapshot{Dim: 2, A: []float64{1, 0, 0}, B: []float64{0, 0}}.Statistics()
	assert.Error(t, err)
	_, err = ArmSnapshot{Dim: 2, A: []float64{1, 0, 0, 1}, B: []float64{0}}.Statistics()
	assert.Error(t, err)
}

func TestRoundRecord_Policy(t *testing.T) {
	rec := RoundRecord{
		LinUCB: PolicyOutcome{Rewards: []float64{1, 0}, Regrets: []float64{0, 0.5}},
		Random: PolicyOutcome{Rewards: []float64{0, 0}, Regrets: []float64{0.2, 0.4}},
	}
	out, ok := rec.Policy(PolicyLinUCB)
	require.True(t, ok)
	assert.Equal(t, 0.5, out.MeanReward())
	assert.Equal(t, 0.25, out.MeanRegret())

	out, ok = rec.Policy(PolicyRandom)
	require.True(t, ok)
	assert.InDelta(t, 0.3, out.MeanRegret(), 1e-12)

	_, ok = rec.Policy("ucb1")
	assert.False(t, ok)
}
