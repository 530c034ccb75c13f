package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestInitDefaults(t *testing.T) {
	viper.Reset()
	cfg = nil

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	require.NoError(t, Init(""))
	c := Get()
	require.Equal(t, float64(30), c.Screencast.MaxFPS)
	require.Equal(t, ChooserDefault, c.Screencast.ChooserType)
}

func TestSearchPathsFallsBackToHomeConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/tester")

	paths := SearchPaths("")
	require.Contains(t, paths[0], "/home/tester/.config/xdg-desktop-portal-wlr")
}

func TestSearchPathsDesktopSpecificFirst(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)

	paths := SearchPaths("sway")
	require.Equal(t, filepath.Join(home, "xdg-desktop-portal-wlr", "sway"), paths[0])
	require.Equal(t, filepath.Join(home, "xdg-desktop-portal-wlr", "config"), paths[1])
}

func TestInitReadsFirstExistingCandidate(t *testing.T) {
	viper.Reset()
	cfg = nil

	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)

	dir := filepath.Join(home, "xdg-desktop-portal-wlr")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config"), []byte("[screencast]\nmax_fps = 15\nchooser_type = simple\n"), 0o644))

	require.NoError(t, Init(""))
	c := Get()
	require.Equal(t, float64(15), c.Screencast.MaxFPS)
	require.Equal(t, ChooserSimple, c.Screencast.ChooserType)
}

func TestMaxFPSZeroDisablesLimiter(t *testing.T) {
	viper.Reset()
	cfg = nil

	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	dir := filepath.Join(home, "xdg-desktop-portal-wlr")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config"), []byte("[screencast]\nmax_fps = 0\n"), 0o644))

	require.NoError(t, Init(""))
	require.LessOrEqual(t, Get().Screencast.MaxFPS, float64(0))
}
