package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tickvault/tickvault/backtest"
	"github.com/tickvault/tickvault/catalog"
	"github.com/tickvault/tickvault/config"
	"github.com/tickvault/tickvault/internal/btlog"
	"github.com/tickvault/tickvault/strategy"
	_ "github.com/tickvault/tickvault/strategy/buyandhold"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var verbose bool

func main() {
	app := cli.NewApp()
	app.Name = "tickvault"
	app.Usage = "market data catalog and deterministic backtest runner"
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:        "verbose",
			Usage:       "enable debug logging",
			Destination: &verbose,
		},
	}
	app.Before = func(*cli.Context) error {
		level := zap.InfoLevel
		if verbose {
			level = zap.DebugLevel
		}
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		logger, err := cfg.Build()
		if err != nil {
			return err
		}
		btlog.SetRoot(logger)
		return nil
	}
	app.Commands = []*cli.Command{
		runCommand,
		catalogCommand,
		strategiesCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "execute one or more backtest run configurations",
	ArgsUsage: "<config.json> [config.json ...]",
	Action:    runBacktests,
}

func runBacktests(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.ShowSubcommandHelp(c)
	}
	cfgs := make([]config.RunConfig, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var cfg config.RunConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		cfgs = append(cfgs, cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := backtest.RunAll(ctx, cfgs)
	if err != nil {
		return err
	}
	jsonOutput(results)
	return nil
}

var catalogCommand = &cli.Command{
	Name:  "catalog",
	Usage: "inspect a market data catalog",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "path",
			Usage:   "catalog root directory",
			EnvVars: []string{"TICKVAULT_CATALOG"},
		},
	},
	Subcommands: []*cli.Command{
		{
			Name:      "info",
			Usage:     "summarise kinds, instruments and partitions",
			ArgsUsage: "[catalog path]",
			Action:    catalogInfo,
		},
	},
}

func catalogInfo(c *cli.Context) error {
	root := c.String("path")
	if c.NArg() > 0 {
		root = c.Args().First()
	}
	if root == "" {
		return cli.ShowSubcommandHelp(c)
	}
	cat, err := catalog.Open(root)
	if err != nil {
		return err
	}

	type partitionInfo struct {
		Path    string `json:"path"`
		MinTS   int64  `json:"min_ts"`
		MaxTS   int64  `json:"max_ts"`
		Records uint32 `json:"records"`
	}
	type kindInfo struct {
		Kind        string                     `json:"kind"`
		Instruments map[string][]partitionInfo `json:"instruments"`
	}

	var out struct {
		Root        string     `json:"root"`
		Instruments []string   `json:"instruments"`
		Kinds       []kindInfo `json:"kinds"`
	}
	out.Root = cat.Root()
	for _, inst := range cat.Instruments() {
		out.Instruments = append(out.Instruments, inst.ID.String())
	}
	for _, kind := range cat.Kinds() {
		ki := kindInfo{Kind: kind.String(), Instruments: make(map[string][]partitionInfo)}
		for _, id := range cat.InstrumentsFor(kind) {
			for _, e := range cat.Entries(kind, id) {
				ki.Instruments[id.String()] = append(ki.Instruments[id.String()], partitionInfo{
					Path:    e.Path,
					MinTS:   e.MinTS,
					MaxTS:   e.MaxTS,
					Records: e.Records,
				})
			}
		}
		out.Kinds = append(out.Kinds, ki)
	}
	jsonOutput(out)
	return nil
}

var strategiesCommand = &cli.Command{
	Name:  "strategies",
	Usage: "list registered strategy keys",
	Action: func(*cli.Context) error {
		jsonOutput(strategy.Registered())
		return nil
	},
}

func jsonOutput(in any) {
	j, err := json.MarshalIndent(in, "", " ")
	if err != nil {
		return
	}
	fmt.Println(string(j))
}
