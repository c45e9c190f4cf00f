// Command containerside runs the Container Side of the proxy fabric:
// the local HTTP ingress, the control listener, and the data-channel
// pool the Edge Side dials into.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"proxyfabric/channelpool"
	"proxyfabric/config"
	"proxyfabric/containerside"
	"proxyfabric/internal/log"
	"proxyfabric/internal/metrics"
)

func main() {
	cfg := &config.ContainerSide{}

	flag.StringVar(&cfg.IngressHost, "ingress-host", "0.0.0.0", "bind host for the local HTTP ingress")
	flag.IntVar(&cfg.IngressPort, "ingress-port", 8080, "bind port for the local HTTP ingress (H)")
	flag.StringVar(&cfg.ControlHost, "control-host", "0.0.0.0", "bind host for the control listener")
	flag.IntVar(&cfg.ControlPort, "control-port", 9000, "bind port for the control listener (C)")
	flag.StringVar(&cfg.DataHost, "data-host", "0.0.0.0", "bind host for the data-channel listeners")
	flag.IntVar(&cfg.DataBasePort, "data-base-port", 9100, "first data-channel port (D1)")
	flag.IntVar(&cfg.DataChannels, "data-channels", 25, "number of data channels (N)")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	flag.Parse()

	cfg.Normalize()
	log.SetLevel(*logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel)

	reg := metrics.New("containerside")
	reg.Run(30 * time.Second)
	defer reg.Stop()

	var control *containerside.ControlServer
	pool := channelpool.New(cfg.DataChannels, cfg.AllocationTimeout, func(requestID string, port int) error {
		return control.SendAllocate(requestID, port)
	}, reg)
	control = containerside.NewControlServer(pool, cfg.HeartbeatInterval, cfg.ReadBufferSize, cfg.WriteBufferSize)

	if err := pool.ListenAndAccept(ctx, cfg.DataHost, cfg.DataBasePort); err != nil {
		log.Errorf("containerside: failed to start data listeners: %v", err)
		os.Exit(1)
	}

	go func() {
		if err := control.ListenAndServe(ctx, cfg.ControlHost, cfg.ControlPort); err != nil {
			log.Errorf("containerside: control listener failed: %v", err)
		}
	}()

	ingress := containerside.NewIngress(pool, control, cfg.ResponseTimeout, reg)
	addr := cfg.IngressHost + ":" + strconv.Itoa(cfg.IngressPort)
	srv := &http.Server{Addr: addr, Handler: ingress.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("containerside: ingress listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("containerside: ingress server failed: %v", err)
		os.Exit(1)
	}
}

func waitForSignal(cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
}
