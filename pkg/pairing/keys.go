package pairing

// Reserved control-message path tags. Everything else is an application
// message and is forwarded to the host untouched.
const (
	// PathRequest carries a connection request; payload is the requester's
	// display name in UTF-8.
	PathRequest = "/opwear/request"
	// PathValidate carries a liveness probe; payload is the prober's display
	// name, possibly empty.
	PathValidate = "/opwear/validate"
	// PathResponse answers a request or probe with exactly one byte.
	PathResponse = "/opwear/response"
)

const (
	responseAccept byte = 1
	responseReject byte = 0
)

func isControlPath(p string) bool {
	return p == PathRequest || p == PathValidate || p == PathResponse
}
