package containerside

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	gometrics "github.com/rcrowley/go-metrics"

	"proxyfabric/channelpool"
	"proxyfabric/httpwire"
	"proxyfabric/internal/log"
	"proxyfabric/internal/metrics"
)

// Ingress is the local HTTP/1.1 server on port H (§4.2): the only
// surface in-container workloads ever talk to. It answers
// /healthcheck and /health itself and proxies everything else through
// the channel pool.
type Ingress struct {
	pool            *channelpool.Pool
	control         *ControlServer
	responseTimeout time.Duration

	successCounter     gometrics.Counter
	unavailableCounter gometrics.Counter
	badGatewayCounter  gometrics.Counter
}

func NewIngress(pool *channelpool.Pool, control *ControlServer, responseTimeout time.Duration, reg *metrics.Registry) *Ingress {
	ig := &Ingress{pool: pool, control: control, responseTimeout: responseTimeout}
	if reg != nil {
		ig.successCounter = reg.Counter("ingress.successful_requests")
		ig.unavailableCounter = reg.Counter("ingress.service_unavailable_count")
		ig.badGatewayCounter = reg.Counter("ingress.bad_gateway_count")
	}
	return ig
}

// Router builds the gorilla/mux handler: explicit health routes plus a
// catch-all proxy route for everything else (§4.2 step 1-2).
func (ig *Ingress) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthcheck", ig.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health", ig.handleHealth).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(ig.handleProxy)
	return r
}

func (ig *Ingress) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if ig.control.Connected() {
		_, _ = w.Write([]byte("CONNECTED"))
	} else {
		_, _ = w.Write([]byte("DISCONNECTED"))
	}
}

func (ig *Ingress) handleProxy(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ig.responseTimeout)
	defer cancel()

	requestID := uuid.NewString()
	port, err := ig.pool.Allocate(ctx, requestID)
	if err != nil {
		ig.writeAllocationError(w, err)
		return
	}

	conn := ig.pool.Conn(port)
	if conn == nil {
		ig.pool.Release(port)
		ig.writeProxyError(w, errors.New("channel attached no socket"))
		return
	}

	resp, err := ig.roundTrip(ctx, conn, r)
	ig.pool.Release(port)
	if err != nil {
		ig.writeProxyError(w, err)
		return
	}

	if ig.successCounter != nil {
		ig.successCounter.Inc(1)
	}
	writeParsedResponse(w, resp)
}

// roundTrip runs the request writer and the response reader
// concurrently (§4.2 step 3): a large upload's response may start
// arriving before the body finishes writing, or only after.
func (ig *Ingress) roundTrip(ctx context.Context, conn net.Conn, r *http.Request) (*httpwire.ParsedResponse, error) {
	var wg sync.WaitGroup
	var writeErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		writeErr = httpwire.WriteRequest(conn, r)
	}()

	reader := bufio.NewReader(conn)
	respCh := make(chan *httpwire.ParsedResponse, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := httpwire.ReadResponse(reader)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		wg.Wait()
		return nil, err
	case resp := <-respCh:
		wg.Wait()
		if writeErr != nil {
			return nil, writeErr
		}
		return resp, nil
	}
}

func writeParsedResponse(w http.ResponseWriter, resp *httpwire.ParsedResponse) {
	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (ig *Ingress) writeAllocationError(w http.ResponseWriter, err error) {
	if errors.Is(err, channelpool.ErrSaturated) {
		if ig.unavailableCounter != nil {
			ig.unavailableCounter.Inc(1)
		}
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Service Unavailable: All proxy channels in use"))
		return
	}
	ig.writeProxyError(w, err)
}

func (ig *Ingress) writeProxyError(w http.ResponseWriter, err error) {
	if ig.badGatewayCounter != nil {
		ig.badGatewayCounter.Inc(1)
	}
	log.Warnf("containerside: proxy error: %v", err)
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(fmt.Sprintf("Proxy Error: %v", err)))
}
