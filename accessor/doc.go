// Package accessor implements adaptive accessors for dynamic invocation.
//
// This package contains:
//   - Immutable descriptors for callables and fields
//   - An interpretive invocation path that is always correct
//   - One-shot promotion of hot accessors to generated fast paths
//   - A single-slot weakly-held binding cache for caller-sensitive targets
//   - Typed field access with the full primitive widening matrix
package accessor
