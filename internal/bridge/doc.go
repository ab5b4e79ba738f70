// Package bridge owns one transport and one protocol controller and runs the
// read loop between them.
//
// The read loop hands every incoming wire string to the controller in
// arrival order, on a single goroutine. Handlers therefore run one at a time
// and must not block waiting for a reply from the peer: a handler that needs
// to issue its own request should Defer its handle and finish from another
// goroutine.
package bridge
