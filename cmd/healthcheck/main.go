// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the rpcguard /health endpoint returns HTTP 200
// and 1 otherwise. A degraded service (storage unreachable) still passes.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	url := flag.String("url", defaultURL(), "Health endpoint to probe")
	timeout := flag.Duration("timeout", 3*time.Second, "Request timeout")
	flag.Parse()

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(*url)
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// defaultURL targets the local server on RPCGUARD_PORT, or 8080.
func defaultURL() string {
	port := os.Getenv("RPCGUARD_PORT")
	if port == "" {
		port = "8080"
	}
	return fmt.Sprintf("http://localhost:%s/health", port)
}
