// Package xapiand is the process entrypoint: it loads configuration, opens
// the database pool over the embedded engine, and accepts connections on
// the remote-protocol and replication ports plus an HTTP /metrics endpoint.
// Grounded on the teacher's cmd/authn/main.go shape (flag-parsed config
// path, signal handler, nlog setup, blocking server Run call) adapted from
// a single HTTP server to three concurrent listeners.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kronuz/Xapiand-sub007/cmn"
	"github.com/Kronuz/Xapiand-sub007/cmn/nlog"
	"github.com/Kronuz/Xapiand-sub007/hk"
	"github.com/Kronuz/Xapiand-sub007/pool"
	"github.com/Kronuz/Xapiand-sub007/remote"
	"github.com/Kronuz/Xapiand-sub007/replication"
	"github.com/Kronuz/Xapiand-sub007/shard/mock"
	"github.com/Kronuz/Xapiand-sub007/stats"
)

var (
	build     string
	buildtime string

	configPath string
)

func init() {
	flag.StringVar(&configPath, "config", "", "xapiand configuration file")
}

func main() {
	if len(os.Args) == 2 && os.Args[1] == "version" {
		printVer()
		os.Exit(0)
	}
	flag.Parse()

	cfg, err := cmn.Load(configPath)
	if err != nil {
		nlog.Errorf("failed to load configuration from %q: %v", configPath, err)
		os.Exit(1)
	}
	cmn.GCO.Put(cfg)

	if cfg.LogDir != "" {
		nlog.SetLogDirRole(cfg.LogDir, cfg.Node.Name)
	}
	nlog.SetTitle("xapiand")
	nlog.Infof("xapiand %s (build %s), node %q", build, buildtime, cfg.Node.Name)

	// The embedded Xapian-compatible storage/query engine is out of this
	// repository's scope (spec.md §1); mock.NewEngine stands in for it so
	// the pool, remote protocol, and replication stream all have something
	// real to exercise end to end.
	p := pool.New(mock.NewEngine(), cfg)
	reg := stats.NewRegistry("xapiand", p)

	go hk.DefaultHK.Run()

	ctx, cancel := context.WithCancel(context.Background())
	installSignalHandler(cancel)

	errc := make(serverErrs, 3)
	go errc.serveRemote(ctx, p, reg, cfg.Node.RemotePort)
	go errc.serveReplication(ctx, p, reg, cfg.Node.ReplicationPort)
	go errc.serveMetrics(ctx, reg, cfg.Node.HTTPPort)

	select {
	case <-ctx.Done():
	case err := <-errc:
		nlog.Errorf("server failed: %v", err)
		cancel()
	}
	p.Shutdown(time.Now().Add(30 * time.Second))
	nlog.Flush(true)
}

type serverErrs chan error

func (errc serverErrs) serveRemote(ctx context.Context, p *pool.DatabasePool, reg *stats.Registry, port int) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		errc <- err
		return
	}
	go func() { <-ctx.Done(); ln.Close() }()
	nlog.Infof("remote protocol listening on %s", ln.Addr())
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			nlog.Warningln(err)
			continue
		}
		s := remote.NewSession(nc, p)
		s.SetMetrics(reg)
	}
}

func (errc serverErrs) serveReplication(ctx context.Context, p *pool.DatabasePool, reg *stats.Registry, port int) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		errc <- err
		return
	}
	go func() { <-ctx.Done(); ln.Close() }()
	nlog.Infof("replication server listening on %s", ln.Addr())
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			nlog.Warningln(err)
			continue
		}
		srv := replication.NewServer(nc, p)
		srv.SetMetrics(reg)
	}
}

func (errc serverErrs) serveMetrics(ctx context.Context, reg *stats.Registry, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() { <-ctx.Done(); srv.Close() }()
	nlog.Infof("metrics listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errc <- err
	}
}

func installSignalHandler(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
	}()
}

func printVer() {
	fmt.Printf("xapiand version %s (build %s)\n", build, buildtime)
}
