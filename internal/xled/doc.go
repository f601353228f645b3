// Package xled is a client for networked addressable-LED devices that
// expose the xled HTTP control API and its UDP realtime endpoint.
//
// The control API lives under http://<host>/xled/v1 and is guarded by a
// short-lived authentication token obtained with a challenge login and
// confirmed with a verify call. The Session renews the token lazily
// before every request, so callers never manage authentication
// themselves.
//
// Realtime frames bypass HTTP entirely: the Streamer packs the decoded
// token and one RGB triple per LED into a single UDP datagram sent to
// port 7777, with no delivery guarantee.
package xled
