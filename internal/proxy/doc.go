// Package proxy checks the network paths a crawl depends on before any
// browser starts: that the proxy under test answers HTTP on its base URL,
// and that an optional upstream SOCKS5 proxy really is one.
//
// Design decision: We verify SOCKS5 by speaking the protocol rather than
// trusting that a port is open, so that a misconfigured port pointing at an
// HTTP server is reported as the wrong proxy type instead of surfacing
// later as browser timeouts.
package proxy
