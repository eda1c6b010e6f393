// Package topic provides hierarchical topic matching and the handler registry used for
// inbound message dispatch.
//
// # Topic Format
//
// Topics are "/"-delimited hierarchies:
//
//	sensors/1/temp
//	devices/gateway-7/status
//
// # Wildcards
//
// Patterns may contain two wildcard segments:
//
//   - "+" matches exactly one non-empty segment
//   - "#" matches zero or more trailing segments and is only legal as the last segment
//
// Examples:
//
//	sensors/+/temp   matches sensors/1/temp (not sensors/temp, not sensors/1/2/temp)
//	a/#              matches a, a/b, a/b/c
//	#                matches everything
//
// A "#" anywhere but the last position never matches anything; ValidatePattern rejects
// such patterns up front.
//
// # Registry
//
// Registry maps registered pattern strings to handlers. Match returns the handler of
// every pattern that matches a concrete topic, not just the first one:
//
//	r := topic.NewRegistry[Handler]()
//	r.Register("x/+", h1)
//	r.Register("x/y", h2)
//	handlers := r.Match("x/y") // h1 and h2, in no particular order
package topic
