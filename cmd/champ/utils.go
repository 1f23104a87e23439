// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/user"
	"path/filepath"

	"github.com/inconshreveable/log15"
	cid "github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/champdb/champ/blockstore"
	"github.com/champdb/champ/hamt"
	"github.com/champdb/champ/metrics"
)

func fatal(args ...interface{}) {
	fmt.Fprint(os.Stderr, "Fatal: ")
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(1)
}

func fatalf(format string, args ...interface{}) {
	fatal(fmt.Sprintf(format, args...))
}

func defaultDataDir() string {
	if home := homeDir(); home != "" {
		return filepath.Join(home, ".champ")
	}
	return ""
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if u, err := user.Current(); err == nil {
		return u.HomeDir
	}
	return ""
}

func initLogger(ctx *cli.Context) {
	logLevel := ctx.Int(verbosityFlag.Name)
	log15.Root().SetHandler(log15.LvlFilterHandler(log15.Lvl(logLevel), log15.StderrHandler))
}

// setupMetrics switches on the prometheus backend and serves the scrape
// endpoint when enabled. The returned stop function is always safe to call.
func setupMetrics(ctx *cli.Context) (func(), error) {
	if !ctx.Bool(enableMetricsFlag.Name) {
		return func() {}, nil
	}
	metrics.InitializePrometheusMetrics()
	url, stop, err := startMetricsServer(ctx.String(metricsAddrFlag.Name))
	if err != nil {
		return nil, err
	}
	log.Info("metrics server started", "url", url)
	return stop, nil
}

func startMetricsServer(addr string) (string, func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("listen metrics addr [%v]: %v", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler())
	srv := &http.Server{Handler: mux}
	go func() {
		srv.Serve(listener)
	}()
	return "http://" + listener.Addr().String() + "/metrics", func() { srv.Close() }, nil
}

// openStore opens the level db under data-dir and stacks the LRU cache and
// CBOR codec on top. The caller must close the returned LevelStore.
func openStore(ctx *cli.Context) (cbor.IpldStore, *blockstore.LevelStore, error) {
	dataDir := ctx.String(dataDirFlag.Name)
	if dataDir == "" {
		fatalf("unable to infer default data dir, use -%s to specify one", dataDirFlag.Name)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("create data dir at '%v': %v", dataDir, err)
	}

	db, err := blockstore.NewLevelStore(filepath.Join(dataDir, "blocks"), blockstore.Options{
		CacheSize:              ctx.Int(cacheFlag.Name),
		OpenFilesCacheCapacity: 500,
	})
	if err != nil {
		return nil, nil, err
	}

	cached, err := blockstore.NewCachedStore(db, 65536)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return cbor.NewCborStore(cached), db, nil
}

func mapOptions(ctx *cli.Context) []hamt.Option {
	opts := []hamt.Option{hamt.UseBitWidth(ctx.Int(bitWidthFlag.Name))}
	switch name := ctx.String(hashFlag.Name); name {
	case "sha256":
		opts = append(opts, hamt.UseHashFunction(hamt.Sha256Hash))
	case "murmur3":
		opts = append(opts, hamt.UseHashFunction(hamt.Murmur3Hash))
	default:
		fatalf("unknown hash algorithm '%v'", name)
	}
	return opts
}

func parseRoot(arg string) cid.Cid {
	c, err := cid.Decode(arg)
	if err != nil {
		fatalf("invalid root '%v': %v", arg, err)
	}
	return c
}

func formatKey(ctx *cli.Context, k []byte) string {
	if ctx.Bool(keyHexFlag.Name) {
		return fmt.Sprintf("%x", k)
	}
	return fmt.Sprintf("%q", k)
}
