// Package ipc provides JSON-RPC daemon control over a Unix domain socket.
//
// The server registers the daemon under the "Loom" service name; the client
// wraps each method with typed request/response structs shared by the CLI.
package ipc
