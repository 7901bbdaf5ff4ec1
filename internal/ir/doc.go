// Package ir defines the data model shared by every txblock component:
// object identities, access modes, block inputs, commands, arguments,
// execution results and package manifests.
//
// ir imports nothing internal. Resolver, builder, engine, classifier and
// trace recorder all speak these types, so ir stays the bottom layer.
//
// Constraints:
//   - Blocks are immutable once built; only internal/block constructs them
//   - Versions are Lamport versions assigned by the engine (0 = unspecified)
//   - No floats in event payloads or canonical JSON
//   - Content digests use domain-separated SHA-256 over RFC 8785 JSON
package ir
