// ABOUTME: Authenticators that attach KSC credentials to outgoing requests
// ABOUTME: Basic (user/password) and token schemes; they only set headers

package transport

import (
	"encoding/base64"
	"fmt"
	"net/http"
)

// Authenticator decorates every request the transport sends.
type Authenticator interface {
	Apply(req *http.Request)
}

// BasicAuth is the server's user/password scheme. Each field is base64-encoded into
// the Authorization header; Internal marks a KSC-internal (non-domain) account.
type BasicAuth struct {
	User     string
	Password string
	Domain   string
	Internal bool
	// VServer selects a virtual server; empty means the main server.
	VServer string
}

func (a BasicAuth) Apply(req *http.Request) {
	internal := "0"
	if a.Internal {
		internal = "1"
	}
	header := fmt.Sprintf(`KSCBasic user="%s", pass="%s", domain="%s", internal="%s"`,
		b64(a.User), b64(a.Password), b64(a.Domain), internal)
	req.Header.Set("Authorization", header)
	if a.VServer != "" {
		req.Header.Set("X-KSC-VServer", b64(a.VServer))
	}
}

// String never prints the password.
func (a BasicAuth) String() string {
	return fmt.Sprintf("KSCBasic(user=%s, domain=%s, internal=%t)", a.User, a.Domain, a.Internal)
}

// Token schemes understood by the server.
const (
	SchemeToken    = "KSCT"
	SchemeGateway  = "KSCGW"
	SchemeWebToken = "KSCWT"
)

// TokenAuth sends a pre-issued token, e.g. from a connection gateway.
type TokenAuth struct {
	Scheme string
	Token  string
}

func (a TokenAuth) Apply(req *http.Request) {
	scheme := a.Scheme
	if scheme == "" {
		scheme = SchemeToken
	}
	req.Header.Set("Authorization", scheme+" "+a.Token)
}

func (a TokenAuth) String() string {
	return fmt.Sprintf("%s(<redacted>)", a.Scheme)
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
