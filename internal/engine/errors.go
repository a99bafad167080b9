package engine

import "errors"

// Error taxonomy. Collector and parser errors wrap one of these sentinels so
// callers can classify without string matching. Only ErrSerialization and a
// failure to establish scan-session identity escalate to a fatal scan.
var (
	// ErrAccessDenied marks insufficient privilege for a resource.
	ErrAccessDenied = errors.New("access denied")

	// ErrParse marks a malformed binary or registry structure.
	ErrParse = errors.New("parse error")

	// ErrNotFound marks an artifact source absent on this host.
	ErrNotFound = errors.New("not found")

	// ErrTimeout marks a collector that exceeded its time budget.
	ErrTimeout = errors.New("collector timeout")

	// ErrSerialization marks an output-contract violation. Always fatal;
	// it indicates an internal defect, not a host condition.
	ErrSerialization = errors.New("serialization error")

	// ErrUnsupportedPlatform marks a collector whose artifact source does
	// not exist on this operating system.
	ErrUnsupportedPlatform = errors.New("artifact source not supported on this platform")
)
