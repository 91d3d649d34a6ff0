package scenarios

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/floodrescue/core/model"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		sc, err := Load(f)
		require.NoError(t, err, f)
		t.Run(sc.Name, func(t *testing.T) {
			rep, err := Run(context.Background(), sc, nil)
			require.NoError(t, err)
			assert.Empty(t, rep.Check(sc.Expected))
		})
	}
}

func TestScenarioMetrics(t *testing.T) {
	sc, err := Load("dedup.yaml")
	require.NoError(t, err)
	rep, err := Run(context.Background(), sc, nil)
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(rep.Registry, "rescue_sink_dedup_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = testutil.GatherAndCount(rep.Registry, "rescue_sink_dispatch_events_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCheckReportsMismatches(t *testing.T) {
	one := 1
	rep := &Report{
		Created:  1,
		Tickets:  map[string]TicketReport{"t1": {ID: "a", Action: "create", Notified: 0, Status: "OPEN"}},
		Rescuers: map[string]string{"r1": "ONLINE"},
	}
	got := rep.Check(Expected{
		Created:  2,
		Tickets:  map[string]TicketExpect{"t1": {Notified: &one, Status: "ASSIGNED"}, "t2": {}},
		Rescuers: map[string]string{"r1": "ON_MISSION"},
	})
	assert.Equal(t, []string{
		"created: want 2, got 1",
		"ticket t1 notified: want 1, got 0",
		"ticket t1 status: want ASSIGNED, got OPEN",
		"ticket t2: not submitted",
		"rescuer r1 status: want ON_MISSION, got ONLINE",
	}, got)
}

func TestRescuerDefDefaults(t *testing.T) {
	r := RescuerDef{ID: "r", Vehicle: "boat"}.ToModel()
	assert.Equal(t, model.RescuerOnline, r.Status)
	assert.Equal(t, 1, r.VehicleCapacity)
	assert.Equal(t, model.VehicleBoat, r.VehicleType)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load("no-file.yaml")
	assert.Error(t, err)

	cases := map[string]string{
		"syntax":      ":",
		"no name":     "tickets: []\n",
		"no ref":      "name: x\ntickets:\n  - {phone: '0901', lat: 1, lng: 1}\n",
		"dup ref":     "name: x\ntickets:\n  - {ref: a, lat: 1, lng: 1}\n  - {ref: a, lat: 1, lng: 1}\n",
		"unknown ref": "name: x\ntickets:\n  - {ref: a, lat: 1, lng: 1}\naccepts:\n  - {ticket: b, rescuer: r}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
