package profile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/citylink/internal/profile"
	"github.com/aretw0/citylink/pkg/adapters/memory"
	"github.com/aretw0/citylink/pkg/session"
	"github.com/aretw0/citylink/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsFreshProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")

	p, err := profile.Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ClientID)
	assert.Equal(t, []string{"food", "stone", "wood"}, p.Keys())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "Load must not create the file")
}

func TestSaveLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile.yaml")
	p := &profile.Profile{
		ClientID:  "H",
		Code:      "483920",
		Applied:   []string{"offer-1-aaaa"},
		Resources: map[string]memory.Stock{"wood": {Amount: 400, Cap: 1000}},
	}
	require.NoError(t, p.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "client_id: H")
	assert.Contains(t, string(raw), "code: \"483920\"")

	back, err := profile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestSaveLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	p := profile.New()
	require.NoError(t, p.Save(path))

	back, err := profile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resources: [unclosed"), 0644))

	_, err := profile.Load(path)
	assert.Error(t, err)
}

func TestCaptureRestoresClient(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	p := profile.New()
	l := p.Ledger()

	c := session.NewClient(store.New(bus.View(p.ClientID)), l, p.Options()...)
	code, err := c.Host(ctx, "ab12")
	require.NoError(t, err)
	require.True(t, l.ApplyDelta("wood", -100, false))

	p.Capture(c, l)
	assert.Equal(t, code, p.Code)
	assert.Equal(t, 400.0, p.Resources["wood"].Amount)

	again := session.NewClient(store.New(bus.View(p.ClientID)), p.Ledger(), p.Options()...)
	again.Resync(ctx)
	snap := again.Snapshot()
	assert.Equal(t, p.ClientID, snap.ClientID)
	assert.Equal(t, "AB12", snap.Code)
	assert.True(t, snap.InSession)
}
