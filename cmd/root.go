// Package cmd wires the cobra command line, the way the teacher's
// cmd package builds waymon's CLI surface.
package cmd

import (
	"fmt"
	"os"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/app"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/config"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/screencast"
	"github.com/spf13/cobra"
)

// Version is set during build.
var Version = "0.1.0-dev"

var pixelFormat string

var rootCmd = &cobra.Command{
	Use:   "xdg-desktop-portal-wlr",
	Short: "XDG Desktop Portal backend for wlroots-based compositors",
	Long: `xdg-desktop-portal-wlr implements the ScreenCast, RemoteDesktop,
GlobalShortcuts and InputCapture portal backends for wlroots-based Wayland
compositors, hosted at org.freedesktop.impl.portal.desktop.wlr.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)
	rootCmd.Flags().StringVarP(&pixelFormat, "pixelformat", "p", "", "force the advertised media format (BGRx|RGBx); no conversion is performed")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) error {
	deps := app.Deps{}

	a, err := app.New(os.Getenv("XDG_CURRENT_DESKTOP"), deps)
	if err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer a.Close()

	if pixelFormat != "" {
		fourcc, err := screencast.ParsePixelFormat(pixelFormat)
		if err != nil {
			return err
		}
		a.Config.SetForcedFormat(fourcc)
	}

	logger.Infof("xdg-desktop-portal-wlr: entering event loop")
	if err := a.Run(); err != nil {
		return fmt.Errorf("event loop: %w", err)
	}
	return nil
}
