// Package wsconn provides a websocket transport.
//
// Each wire string travels as one text frame. Dial returns a client-side
// transport that connects on Start; Handler accepts incoming connections on
// an HTTP server and hands each one to a callback as an already-connected
// transport.
package wsconn
