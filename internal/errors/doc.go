// Package errors defines error types for the Unity bridge.
//
// This package provides structured error types for every failure class of
// the correlated message protocol and its transports. All error types support
// error unwrapping and can be checked using errors.Is, errors.As, and
// errors.AsType.
package errors
