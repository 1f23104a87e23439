// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/inconshreveable/log15"
	cbg "github.com/whyrusleeping/cbor-gen"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/champdb/champ/hamt"
)

var (
	version   string
	gitCommit string
	log       = log15.New()
)

func fullVersion() string {
	if gitCommit == "" {
		return version + "-dev"
	}
	return fmt.Sprintf("%s-%s", version, gitCommit)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "champ",
		Usage:     "inspect content-addressed trie databases",
		Copyright: "2025 The ChampDB developers",
		Commands: []cli.Command{
			{
				Name:      "dump",
				Usage:     "print every key/value pair reachable from a root",
				ArgsUsage: "ROOT",
				Flags: []cli.Flag{
					dataDirFlag,
					bitWidthFlag,
					hashFlag,
					cacheFlag,
					verbosityFlag,
					enableMetricsFlag,
					metricsAddrFlag,
					keyHexFlag,
				},
				Action: dumpAction,
			},
			{
				Name:      "stat",
				Usage:     "report shape statistics of the trie under a root",
				ArgsUsage: "ROOT",
				Flags: []cli.Flag{
					dataDirFlag,
					bitWidthFlag,
					hashFlag,
					cacheFlag,
					verbosityFlag,
					enableMetricsFlag,
					metricsAddrFlag,
				},
				Action: statAction,
			},
			{
				Name:      "diff",
				Usage:     "list the key changes between two roots",
				ArgsUsage: "PREV_ROOT CUR_ROOT",
				Flags: []cli.Flag{
					dataDirFlag,
					bitWidthFlag,
					hashFlag,
					cacheFlag,
					verbosityFlag,
					enableMetricsFlag,
					metricsAddrFlag,
					keyHexFlag,
				},
				Action: diffAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dumpAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("dump expects exactly one root argument")
	}
	initLogger(ctx)
	stopMetrics, err := setupMetrics(ctx)
	if err != nil {
		return err
	}
	defer stopMetrics()

	cs, db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := hamt.LoadMap(context.Background(), cs, parseRoot(ctx.Args().First()), mapOptions(ctx)...)
	if err != nil {
		return err
	}

	count := 0
	err = m.ForEach(context.Background(), func(k []byte, v *cbg.Deferred) error {
		count++
		fmt.Printf("%s\t%x\n", formatKey(ctx, k), v.Raw)
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("dump complete", "entries", count)
	return nil
}

func statAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("stat expects exactly one root argument")
	}
	initLogger(ctx)
	stopMetrics, err := setupMetrics(ctx)
	if err != nil {
		return err
	}
	defer stopMetrics()

	cs, db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := hamt.LoadMap(context.Background(), cs, parseRoot(ctx.Args().First()), mapOptions(ctx)...)
	if err != nil {
		return err
	}

	st, err := m.Stat(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("entries:     %d\n", st.Entries)
	fmt.Printf("nodes:       %d\n", st.Nodes)
	fmt.Printf("buckets:     %d\n", st.Buckets)
	fmt.Printf("max depth:   %d\n", st.MaxDepth)
	fmt.Printf("value bytes: %d\n", st.ValueBytes)
	return nil
}

func diffAction(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("diff expects two root arguments")
	}
	initLogger(ctx)
	stopMetrics, err := setupMetrics(ctx)
	if err != nil {
		return err
	}
	defer stopMetrics()

	cs, db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	prev, err := hamt.LoadMap(context.Background(), cs, parseRoot(ctx.Args().Get(0)), mapOptions(ctx)...)
	if err != nil {
		return err
	}
	cur, err := hamt.LoadMap(context.Background(), cs, parseRoot(ctx.Args().Get(1)), mapOptions(ctx)...)
	if err != nil {
		return err
	}

	changes, err := hamt.Diff(context.Background(), prev, cur)
	if err != nil {
		return err
	}
	for _, ch := range changes {
		switch ch.Type {
		case hamt.Add:
			fmt.Printf("+ %s\t%x\n", formatKey(ctx, ch.Key), ch.After.Raw)
		case hamt.Remove:
			fmt.Printf("- %s\t%x\n", formatKey(ctx, ch.Key), ch.Before.Raw)
		case hamt.Modify:
			fmt.Printf("~ %s\t%x -> %x\n", formatKey(ctx, ch.Key), ch.Before.Raw, ch.After.Raw)
		}
	}
	log.Info("diff complete", "changes", len(changes))
	return nil
}
