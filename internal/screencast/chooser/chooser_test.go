package chooser

import (
	"testing"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/config"
	"github.com/stretchr/testify/require"
)

func outputs() []Output {
	return []Output{
		{Name: "DP-1", Width: 1920, Height: 1080},
		{Name: "HDMI-A-1", Width: 2560, Height: 1440},
	}
}

func TestChooseNoneUsesConfiguredOutputName(t *testing.T) {
	cfg := &config.ScreencastConfig{ChooserType: config.ChooserNone, OutputName: "HDMI-A-1"}
	name, err := Choose(cfg, outputs())
	require.NoError(t, err)
	require.Equal(t, "HDMI-A-1", name)
}

func TestChooseNoneFallsBackToFirstOutput(t *testing.T) {
	cfg := &config.ScreencastConfig{ChooserType: config.ChooserNone, OutputName: "does-not-exist"}
	name, err := Choose(cfg, outputs())
	require.NoError(t, err)
	require.Equal(t, "DP-1", name)
}

func TestChooseSimpleRequiresChooserCmd(t *testing.T) {
	cfg := &config.ScreencastConfig{ChooserType: config.ChooserSimple}
	_, err := Choose(cfg, outputs())
	require.Error(t, err)
}

func TestChooseSimpleReadsHelperOutput(t *testing.T) {
	cfg := &config.ScreencastConfig{ChooserType: config.ChooserSimple, ChooserCmd: "echo DP-1"}
	name, err := Choose(cfg, outputs())
	require.NoError(t, err)
	require.Equal(t, "DP-1", name)
}

func TestChooseDmenuPipesNamesAndReadsSelection(t *testing.T) {
	cfg := &config.ScreencastConfig{ChooserType: config.ChooserDmenu, ChooserCmd: "tail -n1"}
	name, err := Choose(cfg, outputs())
	require.NoError(t, err)
	require.Equal(t, "HDMI-A-1", name)
}

func TestRunHelperExitCode127IsNotFoundError(t *testing.T) {
	_, err := runHelper("exit 127", "")
	require.ErrorIs(t, err, errNotFound)
}

func TestChooseFallsBackWhenDefaultCandidatesMissing(t *testing.T) {
	// In a sandboxed test environment none of wofi/bemenu/dmenu exist,
	// so "default" must fall back to the first enumerated output.
	cfg := &config.ScreencastConfig{ChooserType: config.ChooserDefault}
	name, err := Choose(cfg, outputs())
	require.NoError(t, err)
	require.Equal(t, "DP-1", name)
}

func TestChooseNoOutputsErrors(t *testing.T) {
	cfg := &config.ScreencastConfig{ChooserType: config.ChooserNone}
	_, err := Choose(cfg, nil)
	require.Error(t, err)
}
