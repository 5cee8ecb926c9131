// Package sdkmeta holds process-wide SDK identity: the values every
// outbound request's STATSIG-SDK-TYPE / STATSIG-SDK-VERSION /
// STATSIG-SERVER-SESSION-ID headers are built from. It mirrors the
// teacher's internal/globalconfig + internal/version split: a small set
// of package-level values, lazily initialized, writable once before any
// Client exists (e.g. by a host-language binding at process startup).
package sdkmeta

import (
	"sync"

	"github.com/google/uuid"
)

const defaultSDKType = "statsig-server-core-go"

// Version is the module's release tag. Left as a var (not a const) so a
// host-binding build can stamp it via -ldflags at link time, the same way
// the teacher's internal/version package resolves its Tag.
var Version = "0.1.0"

var (
	mu        sync.Mutex
	sdkType   = defaultSDKType
	sessionID string
)

// SDKType returns the process-wide SDK type identifier sent on every
// outbound request.
func SDKType() string {
	mu.Lock()
	defer mu.Unlock()
	return sdkType
}

// SetSDKType overrides the default SDK type. Intended for host-language
// bindings (e.g. a Python or Ruby FFI layer built on this module) that
// need to identify themselves distinctly from a plain Go caller.
func SetSDKType(t string) {
	mu.Lock()
	defer mu.Unlock()
	if t != "" {
		sdkType = t
	}
}

// SessionID returns a process-wide session identifier, generated once on
// first use and stable for the lifetime of the process.
func SessionID() string {
	mu.Lock()
	defer mu.Unlock()
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return sessionID
}

// ResetForTest clears lazily-initialized state; only safe to call in
// tests that do not run in parallel with other packages reading sdkmeta.
func ResetForTest() {
	mu.Lock()
	defer mu.Unlock()
	sdkType = defaultSDKType
	sessionID = ""
}
