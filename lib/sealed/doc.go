// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age-encrypted credential bundles.
//
// A bundle's plaintext is a YAML map from credential name to value,
// prompt pattern, and description. Sealed with [SealBundle], it
// becomes an armored age file encrypted to one or more x25519
// recipients, safe to keep in a dotfiles repo or on shared disk.
// [OpenBundle] decrypts a bundle with an identity file and holds
// every credential value in an mmap-backed [secret.Buffer].
//
// The daemon never hands credential values to callers directly:
// [Bundle.Rules] converts selected credentials into single-use
// auto-response rules, so a value is typed into an agent terminal
// only when the agent shows the credential's prompt, at most once
// per session.
//
// Key exports:
//
//   - [GenerateKeypair] / [WriteIdentityFile] -- operator key setup
//   - [SealBundle] -- validate plaintext YAML and encrypt to recipients
//   - [OpenBundle] -- decrypt and index a bundle
//   - [Bundle.Rules] -- credentials as once auto-response rules
//   - [ParsePublicKey] -- recipient validation
//
// Depends on filippo.io/age and lib/secret.
package sealed
