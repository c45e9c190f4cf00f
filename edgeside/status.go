// Package edgeside implements the Edge Side half of the fabric
// (§4.6-§4.8): the control-channel client, the per-port data-channel
// clients, the request/response service loop over the Object-Store
// adapter, and the reconnection supervisor.
package edgeside

// ContainerStatus mirrors the container-lifecycle states §4.6 and §4.8
// gate on. The supervisor never owns this state; it is supplied by the
// glue code wiring the ES process to the container's own lifecycle.
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopping ContainerStatus = "stopping"
	StatusStopped  ContainerStatus = "stopped"
)

// StatusFunc reports the current container status at call time.
type StatusFunc func() ContainerStatus
