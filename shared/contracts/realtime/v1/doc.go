// Package v1 defines the huddle realtime protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
//
// Inbound payloads decode into tagged variants (see Inbound) that are fully
// validated here, before anything reaches the session engine.
package v1
