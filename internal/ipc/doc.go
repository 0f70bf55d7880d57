// Package ipc provides JSON-RPC control of the distill daemon over a Unix
// domain socket.
//
// The server wraps the daemon's submit/status/queue/vocabulary surface; the
// client is used by the CLI. Requests and responses are plain structs with
// JSON tags so the protocol stays inspectable with socat or nc.
package ipc
