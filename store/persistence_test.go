package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPersistenceRoundTripsNodeTreeAndPreferences(t *testing.T) {
	dir := t.TempDir()
	p := NewPersistence(filepath.Join(dir, "data"))
	require.True(t, p.Enabled())

	tree := NodeTreeJSON{Nodes: []json.RawMessage{[]byte(`{"id":"a"}`)}}
	require.NoError(t, p.SaveNodeTree(3, tree))

	got := p.LoadNodeTree(3)
	require.Len(t, got.Nodes, 1)

	require.Empty(t, p.LoadNodeTree(4).Nodes)

	prefs := Preferences{Profile: 3, Network: Network{Team: 1234, Mode: "Static", StaticExt: 50}}
	require.NoError(t, p.SavePreferences(prefs))
	require.Equal(t, prefs, p.LoadPreferences())
}

func TestPersistenceDisabledWhenNoWritableDirectory(t *testing.T) {
	p := NewPersistence("/root/nonexistent/definitely-not-writable-xyz")
	require.False(t, p.Enabled())
	require.Empty(t, p.LoadNodeTree(0).Nodes)
	require.Equal(t, DefaultPreferences(), p.LoadPreferences())
	require.NoError(t, p.SaveNodeTree(0, NodeTreeJSON{}))
}

func TestNetworkValidateBounds(t *testing.T) {
	valid := Network{Team: 100, Mode: "mDNS", StaticExt: 50}
	require.NoError(t, valid.Validate())

	tooLowTeam := valid
	tooLowTeam.Team = 0
	require.Error(t, tooLowTeam.Validate())

	tooHighExt := valid
	tooHighExt.StaticExt = 300
	require.Error(t, tooHighExt.Validate())

	badMode := valid
	badMode.Mode = "Carrier Pigeon"
	require.Error(t, badMode.Validate())
}
