/*
Package main implements Rendezvous - a small http service that lets two clients meet on a shared key.

Both clients POST the same key. The first one is held until the second one arrives or
10 seconds pass; the second one never waits:

	POST /wait-for-second-party/{key}   -> "Second party arrived" | "Timeout"

Architecture:

  - registry - the in-memory rendezvous table (one mutex, one wake channel per waiter)
  - api - routes, access list and rate limit guards, status and metrics endpoints
  - server - http(s) listener with certificate hot reload and graceful shutdown
  - metrics - Prometheus collectors fed by registry events

Other endpoints:

	GET /api/v1/waiting   number of clients waiting for a partner
	GET /metrics          Prometheus metrics
	GET /debug/pprof/     profiler, only when RENDEZVOUS_PPROF is set

Configuration:

Rendezvous uses a TOML configuration file (default: rendezvous.conf), generated with
comments when missing. It covers the bind address, TLS certificate, log level, client
access list, per-client rate limit and shutdown timeout. The wait timeout is fixed.

Usage:

	rendezvous [flags]

Flags:

	-c, --config string   location of the config file (default "rendezvous.conf")
	-h, --help            help for rendezvous
	-v, --version         version for rendezvous

Example:

	# Start with custom config
	rendezvous -c /etc/rendezvous/rendezvous.conf

	# Pair two clients
	curl -X POST localhost:3030/wait-for-second-party/job-42 &
	curl -X POST localhost:3030/wait-for-second-party/job-42
*/
package main // import "github.com/semihalev/rendezvous"
