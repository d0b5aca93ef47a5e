// Package main provides the entry point for the proxycrawl CLI.
//
// proxycrawl crawls a list of seed sites twice, once through a rewriting
// web proxy and once directly, and reports pages whose rendered size
// differs between the two.
//
// Usage:
//
//	proxycrawl run --proxy http://127.0.0.1:8080 sites.txt
//	proxycrawl history
//	proxycrawl compare <old-run> <new-run>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
