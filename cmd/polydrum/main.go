// Package main is the entry point for the polydrum CLI
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/james-see/polydrum/pkg/api"
	"github.com/james-see/polydrum/pkg/config"
	"github.com/james-see/polydrum/pkg/midi"
	"github.com/james-see/polydrum/pkg/pattern"
	"github.com/james-see/polydrum/pkg/playback"
	"github.com/james-see/polydrum/pkg/render"
	"github.com/james-see/polydrum/pkg/synth"
	"github.com/james-see/polydrum/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath   string
	kitName      string
	samplesDir   string
	logLevel     string
	outputFile   string
	subdivisions int
	serverPort   int
	logFile      string

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "polydrum",
	Short: "Play and export polyrhythmic drum patterns",
	Long: `polydrum sanitizes generated drum patterns, plays them through a
sample-accurate lookahead scheduler and exports them as MIDI or WAV.

Kits: ACOUSTIC (samples), ELECTRONIC and INDUSTRIAL (synthesized).

Examples:
  polydrum sanitize groove.json
  polydrum midi groove.json -o groove.mid
  polydrum wav groove.json --kit industrial -o groove.wav
  polydrum export groove.json
  polydrum import groove.mid -o groove.json
  polydrum inspect groove.mid
  polydrum play groove.json --samples ./samples
  polydrum serve --port 8080`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize <pattern.json>",
	Short: "Repair a generated pattern and print it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSanitize,
}

var midiCmd = &cobra.Command{
	Use:   "midi <pattern.json>",
	Short: "Export a pattern as a Standard MIDI File",
	Args:  cobra.ExactArgs(1),
	RunE:  runMIDI,
}

var wavCmd = &cobra.Command{
	Use:   "wav <pattern.json>",
	Short: "Render a pattern to a 16-bit WAV file",
	Args:  cobra.ExactArgs(1),
	RunE:  runWAV,
}

var exportCmd = &cobra.Command{
	Use:   "export <pattern.json>",
	Short: "Write both the .mid and the .wav for a pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <input.mid>",
	Short: "Quantize a MIDI drum file into pattern JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <input.mid>",
	Short: "List the events of a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var playCmd = &cobra.Command{
	Use:   "play <pattern.json>",
	Short: "Play a pattern in the interactive step grid",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&kitName, "kit", "k", "", "Drum kit (acoustic, electronic, industrial)")
	rootCmd.PersistentFlags().StringVar(&samplesDir, "samples", "", "Directory holding the acoustic kit samples")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	for _, c := range []*cobra.Command{sanitizeCmd, midiCmd, wavCmd, exportCmd, importCmd} {
		c.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path")
	}
	importCmd.Flags().IntVarP(&subdivisions, "subdivisions", "s", pattern.DefaultSubdivisions, "Steps per beat")
	playCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Base path for exports from the grid")
	playCmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file while the grid is open")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port (default from config)")

	rootCmd.AddCommand(sanitizeCmd)
	rootCmd.AddCommand(midiCmd)
	rootCmd.AddCommand(wavCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig applies defaults, the config file, the environment and then
// any flags that were set.
func loadConfig(cmd *cobra.Command, _ []string) error {
	c := config.Default()
	if configPath != "" {
		if err := c.LoadFile(configPath); err != nil {
			return err
		}
	}
	c.ApplyEnv(os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("kit") {
		c.Kit = kitName
	}
	if flags.Changed("samples") {
		c.SamplesDir = samplesDir
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("port") {
		c.Server.Port = serverPort
	}
	if err := c.Validate(); err != nil {
		return err
	}

	cfg = c
	logger = cfg.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return nil
}

func getOutputPath(input, defaultExt string) string {
	if outputFile != "" {
		return outputFile
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + defaultExt
}

func newRenderer(bank *synth.SampleBank) *render.Renderer {
	return render.New(cfg.RenderOptions(logger), bank)
}

func runSanitize(cmd *cobra.Command, args []string) error {
	p, err := pattern.DecodeFile(args[0])
	if err != nil {
		return err
	}
	return writePattern(cmd.OutOrStdout(), p)
}

func runMIDI(cmd *cobra.Command, args []string) error {
	p, err := pattern.DecodeFile(args[0])
	if err != nil {
		return err
	}
	output := getOutputPath(args[0], ".mid")
	if err := midi.NewEncoder().WriteFile(p, output); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s -> %s\n", args[0], output)
	return nil
}

func runWAV(cmd *cobra.Command, args []string) error {
	p, err := pattern.DecodeFile(args[0])
	if err != nil {
		return err
	}
	output := getOutputPath(args[0], ".wav")
	if err := writeWAV(cmd.Context(), newRenderer(nil), p, output); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rendered %s -> %s (%s)\n", args[0], output, cfg.KitValue())
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	p, err := pattern.DecodeFile(args[0])
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(getOutputPath(args[0], ""), filepath.Ext(outputFile))

	r := newRenderer(nil)
	data, err := r.ExportMIDI(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".mid", data, 0644); err != nil {
		return fmt.Errorf("failed to write MIDI file: %w", err)
	}
	if err := writeWAV(cmd.Context(), r, p, base+".wav"); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s -> %s.mid, %s.wav\n", args[0], base, base)
	return nil
}

func writeWAV(ctx context.Context, r *render.Renderer, p *pattern.Pattern, path string) error {
	data, err := r.ExportWAV(ctx, p, cfg.KitValue())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write WAV file: %w", err)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	p, err := midi.ImportFile(args[0], midi.ImportOptions{
		SubdivisionsPerBeat: subdivisions,
		Description:         "imported from " + filepath.Base(args[0]),
	})
	if err != nil {
		return err
	}
	if outputFile == "" {
		return writePattern(cmd.OutOrStdout(), p)
	}

	var buf bytes.Buffer
	if err := writePattern(&buf, p); err != nil {
		return err
	}
	if err := os.WriteFile(outputFile, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write pattern: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s -> %s (%d notes, %s, %g BPM)\n",
		args[0], outputFile, len(p.Notes), p.TimeSignature, p.BPM)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read MIDI file: %w", err)
	}
	events, err := midi.Inspect(data)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, ev := range events {
		fmt.Fprintln(out, ev)
	}
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	p, err := pattern.DecodeFile(args[0])
	if err != nil {
		return err
	}

	// The grid owns the terminal, so logs go to a file or nowhere.
	var w io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	logger = cfg.NewLogger(w)

	bank := synth.NewSampleBank(cfg.SampleRate, logger)
	engine := synth.NewEngine(cfg.EngineOptions(logger), playback.NewSpeaker(cfg.Buffer()), bank)
	engine.SetKit(cfg.KitValue())
	session := playback.NewSession(engine, logger, cfg.SchedulerOptions()...)
	defer func() { _ = session.Close() }()

	base := strings.TrimSuffix(getOutputPath(args[0], ""), filepath.Ext(outputFile))
	return tui.Run(session, newRenderer(bank), p, base)
}

func runServe(cmd *cobra.Command, _ []string) error {
	port := cfg.Server.Port
	fmt.Fprintf(cmd.OutOrStdout(), "Starting API server on port %d...\n", port)
	fmt.Fprintf(cmd.OutOrStdout(), "Swagger docs available at http://localhost:%d/swagger/index.html\n", port)
	return api.NewServer(newRenderer(nil), cfg.KitValue(), logger).Run(port)
}

func writePattern(w io.Writer, p *pattern.Pattern) error {
	if err := pattern.Encode(w, p); err != nil {
		return fmt.Errorf("failed to encode pattern: %w", err)
	}
	return nil
}
