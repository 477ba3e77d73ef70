// Package fhevm provisions the FHE session a dapp encrypts through. The
// session object is heavyweight and built asynchronously from mutable inputs
// (wallet provider, chain id), so the controller here drives an explicit
// attempt lifecycle rather than ad-hoc goroutines.
//
// Components:
//   - Controller: at most one in-flight provisioning attempt; a new identity
//     cancels the previous attempt before starting, and a cancelled attempt's
//     late result is discarded instead of published.
//   - Session: a validating facade over the externally built Instance;
//     encryption inputs are range-checked before the handle ever sees them.
//   - keycache.Cache: seeds construction with the last known public key and
//     is refreshed write-through when the instance reports a newer one.
//
// The builder, provider and instance are capability interfaces passed in via
// Options; nothing is resolved from ambient globals, which also makes the
// controller trivially testable with substitutes.
package fhevm
