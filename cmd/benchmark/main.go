package main

import (
	"context"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/delaneyj/bindparty/binding"
	"github.com/urfave/cli/v3"
)

const (
	scenarioKey = "scenario"
	reportKey   = "report"
	profileKey  = "cpuprofile"
	itersKey    = "iters"
	countKey    = "count"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Measure path observers, bindings and listener registries",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  scenarioKey,
				Usage: "YAML binding config applied to the binding benchmark",
			},
			&cli.StringFlag{
				Name:  reportKey,
				Usage: "Write a markdown report to this file",
			},
			&cli.StringFlag{
				Name:  profileKey,
				Usage: "Write a CPU profile to this file",
			},
			&cli.UintFlag{
				Name:  itersKey,
				Usage: "Timed iterations per case",
				Value: 100,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "path",
				Usage:  "Propagation through member paths of growing depth",
				Action: profiled(runPath),
			},
			{
				Name:  "binding",
				Usage: "Fan out one source to many bound targets",
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:  countKey,
						Usage: "Largest number of targets",
						Value: 1_000,
					},
				},
				Action: profiled(runBinding),
			},
			{
				Name:  "registry",
				Usage: "Weak listener registry churn and compaction",
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:  countKey,
						Usage: "Listeners per round",
						Value: 100_000,
					},
				},
				Action: profiled(runRegistry),
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// profiled runs action under a CPU profile when --cpuprofile is set.
func profiled(action func(context.Context, *cli.Command) error) func(context.Context, *cli.Command) error {
	return func(ctx context.Context, cmd *cli.Command) error {
		path := cmd.String(profileKey)
		if path == "" {
			return action(ctx, cmd)
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()

		log.Printf("cpu profile: %s", path)
		return action(ctx, cmd)
	}
}

// loadScenario reads the --scenario config, or the defaults when unset.
func loadScenario(cmd *cli.Command) (binding.Config, error) {
	path := cmd.String(scenarioKey)
	if path == "" {
		return binding.DefaultConfig(), nil
	}
	cfg, err := binding.LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	log.Printf("scenario %s: mode=%s delay=%s", path, cfg.DefaultMode, cfg.Delay)
	return cfg, nil
}

// finish renders the results and writes the report when asked to.
func finish(cmd *cli.Command, title string, start time.Time, results []result) error {
	renderResults(title, results)
	log.Printf("%s finished in %v", title, time.Since(start))

	path := cmd.String(reportKey)
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	writeReport(f, title, results)
	log.Printf("report written to %s", path)
	return nil
}
