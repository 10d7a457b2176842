// Package events is brainy's in-process pub/sub bus: a non-blocking
// Broker fans out noun/verb/cluster lifecycle events to any number of
// subscribers, each with its own buffered channel so one slow
// subscriber never blocks another. The SSE endpoint in pkg/api
// subscribes to it; nothing here persists across a restart.
package events
