package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/apperrors"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/bootstrap"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/config"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/discovery"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/kgx"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/logging"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/namespace"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/retry"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/server/graph"
)

// env is the configuration and logger every subcommand shares.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func rootCmd() *cli.Command {
	e := &env{}
	return &cli.Command{
		Name:    "beacon-tools",
		Usage:   "Maintain the prefix mapping table and the embedded graph of a beacon",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "Path to the YAML configuration file",
				Sources: cli.EnvVars("BEACON_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := config.LoadFile(cmd.String("config"), Version)
			if err != nil {
				return ctx, err
			}
			if lvl := cmd.String("log-level"); lvl != "" {
				cfg.Logging.Level = lvl
			}
			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
			if err != nil {
				return ctx, err
			}
			e.cfg, e.logger = cfg, logger
			return ctx, nil
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			if e.logger != nil {
				e.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			discoverCmd(e),
			reduceCmd(e),
			loadCmd(e),
			contractCmd(e),
			expandCmd(e),
			mappingsCmd(e),
		},
	}
}

func discoverCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "Build the URI prefix to CURIE namespace table from the graph",
		Description: `Samples every identifier in the graph store in batches, contracting each
to a CURIE with the prefix registry, until every identifier is explained by
the table or was skipped. The table is saved to the configured store.

When more identifiers than --skip-threshold cannot be contracted the run
stops, nothing is saved, and the skipped identifiers are printed with the
namespace candidates suggested by longest-common-prefix reduction.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Mapping file to write (file store only, default from config)",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Identifiers fetched per batch (default from config)",
			},
			&cli.IntFlag{
				Name:  "skip-threshold",
				Usage: "Unmappable identifiers tolerated before giving up (default from config)",
			},
			&cli.IntFlag{
				Name:  "retries",
				Value: 3,
				Usage: "Retries with exponential backoff when the graph store is unavailable",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := e.cfg
			if n := cmd.Int("batch-size"); n > 0 {
				cfg.Discovery.BatchSize = int(n)
			}
			if n := cmd.Int("skip-threshold"); n > 0 {
				cfg.Discovery.SkipThreshold = int(n)
			}

			repo, err := bootstrap.OpenGraph(ctx, cfg, e.logger)
			if err != nil {
				return err
			}
			defer repo.Close(context.Background())

			registry, err := bootstrap.Registry(cfg)
			if err != nil {
				return err
			}
			engine := discovery.NewEngine(repo, registry, bootstrap.Denylist(cfg), discovery.Config{
				BatchSize:     cfg.Discovery.BatchSize,
				SkipThreshold: cfg.Discovery.SkipThreshold,
				FetchTimeout:  cfg.Discovery.FetchTimeout,
			}, e.logger)

			backoff := retry.DefaultConfig()
			backoff.MaxRetries = max(int(cmd.Int("retries")), 0)
			result, err := retry.DoIfRetryable(ctx, backoff, func() (*discovery.Result, error) {
				return engine.DiscoverMappings(ctx)
			})
			if errors.Is(err, apperrors.ErrSkipThresholdExceeded) && result != nil {
				printSkipped(stdout(cmd), result.Skipped)
				return err
			}
			if err != nil {
				return err
			}

			store, closer, err := bootstrap.MappingStore(ctx, cfg, cmd.String("output"))
			if err != nil {
				return err
			}
			defer closer.Close()

			table := discovery.NewMappingTable(result)
			if err := store.Save(ctx, table); err != nil {
				return err
			}
			w := stdout(cmd)
			p := newPainter(w)
			fmt.Fprintf(w, "%s %d mappings, %d skipped %s\n",
				p.title("saved"), len(table.Mappings), len(table.Skipped), p.dim("(run "+table.RunID+")"))
			e.logger.Info("Saved prefix mapping table",
				zap.String("run_id", table.RunID),
				zap.String("store", cfg.Discovery.Store),
				zap.Int("mappings", len(table.Mappings)),
				zap.Int("skipped", len(table.Skipped)),
				zap.Int("batches", result.Batches))
			return nil
		},
	}
}

func printSkipped(w io.Writer, skipped []string) {
	p := newPainter(w)
	fmt.Fprintln(w, p.err(fmt.Sprintf("%d identifiers could not be contracted:", len(skipped))))
	for _, s := range skipped {
		fmt.Fprintf(w, "  %s\n", p.dim(s))
	}
	fmt.Fprintln(w, p.title("Candidate namespaces:"))
	for _, c := range discovery.Discover(skipped) {
		fmt.Fprintf(w, "  %s\n", c)
	}
}

func reduceCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "reduce",
		Usage:     "Suggest namespace prefixes for a list of URIs",
		ArgsUsage: "[file]",
		Description: `Reads one URI per line from file, or stdin when no file is given, and
prints the candidate namespace prefixes found by repeated longest-common-
prefix reduction. With --from-table the skipped identifiers of the stored
mapping table are reduced instead.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "from-table",
				Usage: "Reduce the skipped identifiers of the stored mapping table",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var uris []string
			if cmd.Bool("from-table") {
				store, closer, err := bootstrap.MappingStore(ctx, e.cfg, e.cfg.Identifiers.MappingFile)
				if err != nil {
					return err
				}
				defer closer.Close()
				table, err := store.Load(ctx)
				if err != nil {
					return err
				}
				uris = table.Skipped
			} else {
				in := stdin(cmd)
				if path := cmd.Args().First(); path != "" && path != "-" {
					f, err := os.Open(path)
					if err != nil {
						return fmt.Errorf("opening %s: %w", path, err)
					}
					defer f.Close()
					in = f
				}
				var err error
				if uris, err = readLines(in); err != nil {
					return err
				}
			}
			for _, p := range discovery.Discover(uris) {
				fmt.Fprintln(stdout(cmd), p)
			}
			return nil
		},
	}
}

func loadCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "Import a KGX JSON graph into the configured graph store",
		ArgsUsage: "<file.json[.gz]>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return errors.New("a KGX file is required")
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", path, err)
			}
			defer f.Close()

			repo, err := bootstrap.OpenGraph(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer repo.Close(context.Background())

			var stats kgx.Stats
			switch r := repo.(type) {
			case *graph.SQLiteRepository:
				err = r.WithLoader(ctx, func(l *graph.Loader) error {
					stats, err = kgx.NewLoader(l, e.logger).Load(ctx, f)
					return err
				})
			case kgx.Writer:
				stats, err = kgx.NewLoader(r, e.logger).Load(ctx, f)
			default:
				return fmt.Errorf("%s backend cannot import graphs: %w", e.cfg.Graph.Backend, apperrors.ErrUnsupported)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout(cmd), "loaded %d nodes and %d edges (skipped %d nodes, %d edges)\n",
				stats.Nodes, stats.Edges, stats.SkippedNodes, stats.SkippedEdges)
			return nil
		},
	}
}

// normalizer builds a normalizer over the registry and the stored mapping
// table.
func (e *env) normalizer(ctx context.Context) (*namespace.Normalizer, error) {
	registry, err := bootstrap.Registry(e.cfg)
	if err != nil {
		return nil, err
	}
	n := namespace.NewNormalizer(registry, e.logger)
	store, closer, err := bootstrap.MappingStore(ctx, e.cfg, e.cfg.Identifiers.MappingFile)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	if err := bootstrap.PublishMappings(ctx, store, n, e.logger); err != nil {
		return nil, err
	}
	return n, nil
}

func contractCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "contract",
		Usage:     "Print the shortest CURIE for each URI",
		ArgsUsage: "<uri>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			n, err := e.normalizer(ctx)
			if err != nil {
				return err
			}
			for _, uri := range cmd.Args().Slice() {
				fmt.Fprintf(stdout(cmd), "%s\t%s\n", uri, n.Contract(uri))
			}
			return nil
		},
	}
}

func expandCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "expand",
		Usage:     "Print every known URI for each CURIE",
		ArgsUsage: "<curie>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			n, err := e.normalizer(ctx)
			if err != nil {
				return err
			}
			for _, curie := range cmd.Args().Slice() {
				uris := n.Expand(curie)
				if len(uris) == 0 {
					fmt.Fprintf(stdout(cmd), "%s\t-\n", curie)
					continue
				}
				fmt.Fprintf(stdout(cmd), "%s\t%s\n", curie, strings.Join(uris, " "))
			}
			return nil
		},
	}
}

func mappingsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "mappings",
		Usage: "Print the stored prefix mapping table as YAML",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, closer, err := bootstrap.MappingStore(ctx, e.cfg, e.cfg.Identifiers.MappingFile)
			if err != nil {
				return err
			}
			defer closer.Close()
			table, err := store.Load(ctx)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(stdout(cmd))
			defer enc.Close()
			return enc.Encode(table)
		},
	}
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stdin(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return out, nil
}
