// Package srt implements SRT (Secure Reliable Transport) ingest, including
// both listener-mode (Server) for accepting incoming publish connections and
// caller-mode (Caller) for pulling streams from remote SRT sources. Each
// connection becomes one mixer channel, named after its stream ID.
package srt
