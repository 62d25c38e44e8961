package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/habla/internal/capture"
	"github.com/dgnsrekt/habla/internal/relay"
)

var (
	okMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("✓")
	failMark = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
)

var checkCmd = &cobra.Command{
	Use:     "check",
	Short:   "Check the relay and the available recording formats",
	Long:    paragraph(fmt.Sprintf("\n%s that the relay answers and list which recording containers ffmpeg can produce. Without any, habla records WAV.", keyword("Check"))),
	Example: paragraph("habla check\nhabla check --relay-url https://tutor.example.com"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		client := relay.NewClient(settings.RelayConfig(), relay.WithLogger(log.Default().WithPrefix("relay")))
		relayErr := client.Ping(ctx)
		if relayErr != nil {
			fmt.Printf("%s relay %s: %v\n", failMark, client.BaseURL(), relayErr)
		} else {
			fmt.Printf("%s relay %s\n", okMark, client.BaseURL())
		}

		encoders := capture.NewFFmpegEncoders(settings.Capture.SampleRate, log.Default().WithPrefix("encoder"))
		for _, mime := range settings.CaptureConfig().Formats {
			mark := failMark
			if encoders.IsTypeSupported(mime) {
				mark = okMark
			}
			fmt.Printf("%s record %s\n", mark, mime)
		}
		fmt.Printf("%s record audio/wav\n", okMark)

		if relayErr != nil {
			return fmt.Errorf("relay unreachable")
		}
		return nil
	},
}
