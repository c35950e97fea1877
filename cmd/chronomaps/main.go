package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/chronomaps/internal/baserow"
	"github.com/joeblew999/chronomaps/internal/config"
	"github.com/joeblew999/chronomaps/internal/geoview"
	"github.com/joeblew999/chronomaps/internal/logging"
	"github.com/joeblew999/chronomaps/internal/markertiles"
	"github.com/joeblew999/chronomaps/internal/server"
)

// Options defines all CLI flags and env vars for the chronomaps server.
// Flags: --host, --port, --data-dir, --web-dir, --config, --log-level, --log-format
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir   string `doc:"Directory for the chronomap registry and snapshot cache" default:".data"`
	WebDir    string `doc:"Optional web/ directory overriding built-in templates and static files"`
	Config    string `doc:"Tunables file (YAML, TOML or JSON)"`
	LogLevel  string `doc:"Log level: debug, info, warn, error" default:"info"`
	LogFormat string `doc:"Log format: text or json" default:"text"`
	NoCache   bool   `doc:"Do not cache snapshots in DuckDB"`
}

func newLogger(opts *Options) *slog.Logger {
	logger := logging.New(opts.LogLevel, opts.LogFormat, os.Stderr)
	slog.SetDefault(logger)
	return logger
}

func loadConfig(opts *Options) config.Config {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newServer(opts *Options) *server.Server {
	return server.New(server.Config{
		Host:     opts.Host,
		Port:     fmt.Sprintf("%d", opts.Port),
		DataDir:  opts.DataDir,
		WebDir:   opts.WebDir,
		Tunables: loadConfig(opts),
		NoCache:  opts.NoCache,
		Logger:   newLogger(opts),
	})
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var httpServer *http.Server
		var srv *server.Server

		hooks.OnStart(func() {
			srv = newServer(opts)
			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("chronomaps server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Pages:   %s/c/{slug}\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fail("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if httpServer != nil {
				httpServer.Shutdown(ctx)
			}
			if srv != nil {
				srv.Close()
			}
		})
	})

	cli.Root().Use = "chronomaps"
	cli.Root().Short = "Timeline and map storytelling server for Baserow-backed chronomaps"
	cli.Root().Version = "1.0.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.NoCache = true
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fail("Error marshaling spec: %v", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	cli.Root().AddCommand(geoCommand(), tilesCommand(), directoryCommand())

	cli.Run()
}

// geoCommand converts between geo-view strings and cameras.
func geoCommand() *cobra.Command {
	geoCmd := &cobra.Command{Use: "geo", Short: "Encode and decode geo-view strings"}

	geoCmd.AddCommand(&cobra.Command{
		Use:   "decode VIEW",
		Short: "Print the camera of a geo-view string as JSON",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cam := geoview.Decode(args[0])
			if cam.IsZero() {
				fail("No camera in %q", args[0])
			}
			out, _ := json.MarshalIndent(cam, "", "  ")
			fmt.Println(string(out))
		},
	})

	encodeCmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the geo-view string of a camera",
		Run: func(cmd *cobra.Command, args []string) {
			f := cmd.Flags()
			zoom, _ := f.GetFloat64("zoom")
			lat, _ := f.GetFloat64("lat")
			lon, _ := f.GetFloat64("lon")
			cam := geoview.FlyToOptions{Center: &geoview.LatLon{Lat: lat, Lon: lon}, Zoom: geoview.Float(zoom)}
			if f.Changed("bearing") {
				b, _ := f.GetFloat64("bearing")
				cam.Bearing = geoview.Float(b)
			}
			if f.Changed("pitch") {
				p, _ := f.GetFloat64("pitch")
				cam.Pitch = geoview.Float(p)
			}
			fmt.Println(geoview.Encode(cam))
		},
	}
	encodeCmd.Flags().Float64("zoom", 0, "Zoom level")
	encodeCmd.Flags().Float64("lat", 0, "Latitude")
	encodeCmd.Flags().Float64("lon", 0, "Longitude")
	encodeCmd.Flags().Float64("bearing", 0, "Bearing in degrees")
	encodeCmd.Flags().Float64("pitch", 0, "Pitch in degrees")
	geoCmd.AddCommand(encodeCmd)
	return geoCmd
}

// tilesCommand writes a chronomap's markers as a PMTiles archive.
func tilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tiles SLUG",
		Short: "Write the markers of a chronomap to a PMTiles archive",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			slug := args[0]
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				output = slug + ".pmtiles"
			}

			srv := newServer(opts)
			defer srv.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			snap, err := srv.Services().Content.Snapshot(ctx, slug)
			if err != nil {
				fail("Error loading %s: %v", slug, err)
			}

			f, err := os.Create(output)
			if err != nil {
				fail("Error creating %s: %v", output, err)
			}
			tiles := srv.Services().Tiles
			tiles.Name = slug
			stats, err := markertiles.Write(f, snap.Items, tiles)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(output)
				fail("Error writing tiles: %v", err)
			}
			fmt.Printf("Wrote %d features in %d tiles to %s\n", stats.Features, stats.Tiles, output)
		}),
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default SLUG.pmtiles)")
	return cmd
}

// directoryCommand manages the chronomap registry.
func directoryCommand() *cobra.Command {
	dirCmd := &cobra.Command{Use: "directory", Short: "Import and export the chronomap registry"}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import chronomaps from a Baserow admin database or a YAML file",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			f := cmd.Flags()
			file, _ := f.GetString("file")
			token, _ := f.GetString("token")
			database, _ := f.GetInt("database")

			opts.NoCache = true
			srv := newServer(opts)
			defer srv.Close()
			maps := srv.Services().Chronomaps

			var added int
			var err error
			switch {
			case file != "":
				var data []byte
				data, err = os.ReadFile(file)
				if err == nil {
					added, err = maps.ImportYAML(data)
				}
			case token != "" && database > 0:
				endpoint, _ := f.GetString("endpoint")
				if endpoint == "" {
					endpoint = loadConfig(opts).Content.Endpoint
				}
				signalCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				ctx, cancel := context.WithTimeout(signalCtx, time.Minute)
				defer cancel()
				added, err = maps.ImportDirectory(ctx, baserow.New(endpoint, token, database))
			default:
				fail("Either --file or --token and --database are required")
			}
			if err != nil {
				fail("Import failed after %d chronomaps: %v", added, err)
			}
			fmt.Printf("Imported %d new chronomaps (%d total)\n", added, len(maps.List()))
		}),
	}
	importCmd.Flags().String("file", "", "YAML file of chronomaps")
	importCmd.Flags().String("token", "", "Baserow token of the admin database")
	importCmd.Flags().Int("database", 0, "Baserow id of the admin database")
	importCmd.Flags().String("endpoint", "", "Baserow API endpoint (default from config)")
	dirCmd.AddCommand(importCmd)

	dirCmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Print the chronomap registry as YAML, including database tokens",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.NoCache = true
			srv := newServer(opts)
			defer srv.Close()
			out, err := srv.Services().Chronomaps.ExportYAML()
			if err != nil {
				fail("Export failed: %v", err)
			}
			os.Stdout.Write(out)
		}),
	})
	return dirCmd
}
