// Package ingest defines the Event Record and the contracts shared by the
// push sources, the stream listener, and the result writer.
package ingest
