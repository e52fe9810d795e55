package clock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
	"github.com/GoCodeAlone/sage/feeders"
)

func loadClock(t *testing.T, cfg string, now time.Time) (*sage.StdApplication, *ClockModule, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sage.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	mod := New(WithClock(func() time.Time { return now }))
	registry := sage.NewRegistry()
	registry.MustRegister(ModuleName, func() sage.Module { return mod })
	app, err := sage.NewStdApplication(sage.NewConfigLoader(feeders.NewTomlFeeder(path)), registry, sage.NopLogger())
	require.NoError(t, err)

	_, err = app.Load(context.Background(), sage.ModuleDescriptor{Name: ModuleName, Required: true})
	return app, mod, err
}

func TestClock_TimeQuery(t *testing.T) {
	now := time.Date(2026, 10, 16, 15, 4, 0, 0, time.UTC)
	app, _, err := loadClock(t, "[clock]\ntimezone = \"UTC\"\n", now)
	require.NoError(t, err)

	resp, err := app.HandleCommand(context.Background(), ModuleName, eventbus.Command{Intent: eventbus.Intent{Name: "time_query"}})
	require.NoError(t, err)
	assert.Equal(t, "It's currently 3:04 PM on Friday, October 16", resp.Text)
}

func TestClock_Timezone(t *testing.T) {
	now := time.Date(2026, 10, 16, 15, 4, 0, 0, time.UTC)
	app, _, err := loadClock(t, "[clock]\ntimezone = \"Asia/Tokyo\"\nformat = \"15:04 MST\"\n", now)
	require.NoError(t, err)

	resp, err := app.HandleCommand(context.Background(), ModuleName, eventbus.Command{})
	require.NoError(t, err)
	assert.Equal(t, "It's currently 00:04 JST", resp.Text)
	assert.Equal(t, "Asia/Tokyo", app.Modules()[0].Details["timezone"])
}

func TestClock_InvalidTimezoneFailsInit(t *testing.T) {
	_, _, err := loadClock(t, "[clock]\ntimezone = \"Nowhere/Land\"\n", time.Now())
	var initErr *sage.ModuleInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, ModuleName, initErr.Module)
}
