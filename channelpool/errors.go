package channelpool

import "errors"

var (
	// ErrSaturated means every data channel is currently in_use; surfaces
	// as 503 + Retry-After: 1 on the ingress.
	ErrSaturated = errors.New("channelpool: all proxy channels in use")

	// ErrAllocationTimeout means the ES never confirmed ChannelAllocated
	// within the allocation timeout.
	ErrAllocationTimeout = errors.New("channelpool: allocation timed out waiting for edge side")

	// ErrSocketNeverAttached means the control channel confirmed the
	// allocation but the ES never opened the corresponding data socket
	// before the allocation timeout elapsed.
	ErrSocketNeverAttached = errors.New("channelpool: edge side confirmed allocation but never opened the data socket")

	ErrUnknownPort = errors.New("channelpool: unknown data channel port")

	ErrControlChannelDown = errors.New("channelpool: control channel is down")
)

// RemoteError wraps an Error{request_id, message} reply from the ES into
// a typed error carrying the message verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "channelpool: edge side reported: " + e.Message }
