// Command edgeside runs the Edge Side of the proxy fabric: it keeps a
// control connection open to the Container Side and serves allocated
// data channels against the Object Store adapter.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"proxyfabric/config"
	"proxyfabric/edgeside"
	"proxyfabric/internal/log"
	"proxyfabric/objectstore"
)

func main() {
	cfg := &config.EdgeSide{}

	flag.StringVar(&cfg.Transport, "transport", "tcp", "tcp or vsock; vsock dials the Container Side over AF_VSOCK instead of ControlHost/DataHost")
	var vsockContextID uint
	flag.UintVar(&vsockContextID, "vsock-context-id", 0, "Container Side CID, used when -transport=vsock")
	flag.StringVar(&cfg.ControlHost, "control-host", "127.0.0.1", "Container Side control host (tcp transport)")
	flag.IntVar(&cfg.ControlPort, "control-port", 9000, "Container Side control port")
	flag.StringVar(&cfg.DataHost, "data-host", "127.0.0.1", "Container Side data host (tcp transport)")
	flag.IntVar(&cfg.DataBasePort, "data-base-port", 9100, "first data-channel port")
	flag.IntVar(&cfg.DataChannels, "data-channels", 25, "number of data channels")
	bucketLog := flag.String("multipart-log", "", "path to the multipart ledger file (empty discards it)")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	flag.Parse()
	cfg.VSockContextID = uint32(vsockContextID)

	cfg.Normalize()
	log.SetLevel(*logLevel)

	var ledger io.Writer = io.Discard
	var ledgerFile *os.File
	if *bucketLog != "" {
		f, err := os.OpenFile(*bucketLog, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			log.Errorf("edgeside: failed to open multipart ledger %s: %v", *bucketLog, err)
			os.Exit(1)
		}
		defer f.Close()
		ledger = f
		ledgerFile = f
	}

	adapter := objectstore.NewAdapter([]string{config.DefaultBucket}, ledger)

	if ledgerFile != nil {
		// O_APPEND only affects where writes land, not the read offset,
		// so this reads whatever a prior process already appended before
		// any new record from this run reaches the file.
		recovered, aborted, err := adapter.RecoverLedger(ledgerFile)
		if err != nil {
			log.Warnf("edgeside: multipart ledger recovery failed: %v", err)
		} else if recovered > 0 {
			log.Infof("edgeside: multipart ledger recovery found %d upload(s), aborted %d still in flight", recovered, aborted)
		}
	}

	// The container's own lifecycle is driven by something outside this
	// process; StatusRunning is a permanent stand-in until that wiring
	// exists.
	status := func() edgeside.ContainerStatus { return edgeside.StatusRunning }

	sup := edgeside.NewSupervisor(cfg, adapter, status)

	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Infof("edgeside: shutting down")
	cancel()
	sup.Stop(context.Background())
}
