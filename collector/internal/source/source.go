// Package source provides the built-in query capabilities: working
// implementations of the collector's injected query function for the two
// transports the fleet actually exposes. Both return the raw payload exactly
// as received; shape tolerance is the normalizer's job.
package source
