package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/atxgeo/parcelmap/internal/dataset"
	"github.com/atxgeo/parcelmap/internal/server"
)

// Options defines all CLI flags and env vars for the parcelmap server.
// Flags: --host, --port, --data-dir, --web-dir, --mapbox-token
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR,
// SERVICE_MAPBOX_TOKEN
type Options struct {
	Host        string `doc:"Host to bind to" default:"0.0.0.0"`
	Port        int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir     string `doc:"Directory for dataset and store files" default:".data"`
	WebDir      string `doc:"Path to web/ directory" default:"web"`
	MapboxToken string `doc:"Mapbox access token for geocoding" default:""`
}

func newServer(opts *Options) *server.Server {
	return server.New(server.Config{
		Host:        opts.Host,
		Port:        fmt.Sprintf("%d", opts.Port),
		DataDir:     opts.DataDir,
		WebDir:      opts.WebDir,
		MapboxToken: opts.MapboxToken,
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		hooks.OnStart(func() {
			srv := newServer(opts)
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("parcelmap API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Map:     %s/map\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatalf("Server error: %v", err)
			}
		})
	})

	cli.Root().Use = "parcelmap"
	cli.Root().Short = "Travis County parcel and building map server"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
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
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// extract subcommand: offline bounded building extraction
	extractCmd := &cobra.Command{
		Use:   "extract <input.geojson> <output.geojson>",
		Short: "Extract Travis County building footprints from a statewide GeoJSON dump",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			in, err := os.Open(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error opening input: %v\n", err)
				os.Exit(1)
			}
			defer in.Close()

			out, err := os.Create(args[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating output: %v\n", err)
				os.Exit(1)
			}
			defer out.Close()

			maxFeatures, _ := cmd.Flags().GetInt("max-features")
			maxBytes, _ := cmd.Flags().GetInt64("max-bytes")

			stats, err := dataset.ExtractBounded(in, out, dataset.ExtractOptions{
				MaxFeatures: maxFeatures,
				MaxBytes:    maxBytes,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Scanned %d features, accepted %d, skipped %d malformed (%d bytes read)\n",
				stats.Scanned, stats.Accepted, stats.Malformed, stats.BytesRead)
		},
	}
	extractCmd.Flags().Int("max-features", 5000, "Stop after this many accepted features")
	extractCmd.Flags().Int64("max-bytes", 0, "Stop after roughly this many input bytes (0 = unbounded)")
	cli.Root().AddCommand(extractCmd)

	cli.Run()
}
