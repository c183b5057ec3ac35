// Package buffer provides a thread-safe generic ring buffer that
// overwrites the oldest data when full, for maintaining sliding windows
// of recent data such as in-memory log tails.
package buffer
