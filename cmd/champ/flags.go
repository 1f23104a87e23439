// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	cli "gopkg.in/urfave/cli.v1"
)

var (
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Value: defaultDataDir(),
		Usage: "directory for the block database",
	}
	bitWidthFlag = cli.IntFlag{
		Name:  "bitwidth",
		Value: 8,
		Usage: "digest bits consumed per trie level (1-8), must match the value the trie was written with",
	}
	hashFlag = cli.StringFlag{
		Name:  "hash",
		Value: "sha256",
		Usage: "key hash algorithm (sha256|murmur3), must match the value the trie was written with",
	}
	cacheFlag = cli.IntFlag{
		Name:  "cache",
		Value: 128,
		Usage: "megabytes of ram allocated to the database cache",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Value: 3,
		Usage: "log verbosity (0-9)",
	}
	enableMetricsFlag = cli.BoolFlag{
		Name:  "enable-metrics",
		Usage: "enables metrics collection",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Value: "localhost:2112",
		Usage: "metrics service listening address",
	}
	keyHexFlag = cli.BoolFlag{
		Name:  "key-hex",
		Usage: "print keys as hex instead of escaped text",
	}
)
