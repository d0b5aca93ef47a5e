package proxy

import "errors"

// Proxy connectivity errors. They separate "nothing listens" from
// "something listens but is not a SOCKS5 proxy".
var (
	// ErrInvalidProxyAddress is returned when an upstream address is not
	// in "host:port" form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrProxyWrongType is returned when the upstream address answers but
	// does not speak SOCKS5 without authentication.
	ErrProxyWrongType = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection to the
	// upstream proxy can be established.
	ErrProxyCannotConnect = errors.New("cannot connect to upstream proxy")

	// ErrProxyTimeout is returned when the upstream proxy does not answer
	// in time.
	ErrProxyTimeout = errors.New("timeout connecting to upstream proxy")

	// ErrProxyBaseUnreachable is returned when the proxy under test does
	// not answer HTTP requests on its base URL.
	ErrProxyBaseUnreachable = errors.New("proxy base is unreachable")
)

// ProxyStatus is the result of checking an upstream SOCKS5 proxy.
type ProxyStatus int

const (
	// ProxyStatusOK indicates a working SOCKS5 proxy.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates the address answered but is not a
	// SOCKS5 proxy, or one that requires authentication.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates no connection could be made.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the check timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyWrongType
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
