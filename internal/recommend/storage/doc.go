// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

// Package storage persists trained model artifacts across restarts.
//
// Every save writes one versioned binary file carrying the serialized model
// parameters and the matched identifier encoders together, plus a JSON
// metadata sidecar for operators. Keeping both blobs in a single file means
// a deploy can never pair a model with encoders from a different training
// run.
//
// # Storage Format
//
//	/data/models/
//	  sgd_v1.bin     gob(storedFile): metadata + gzip(model) + gzip(encoders)
//	  sgd_v1.json    pretty-printed metadata
//	  sgd_v2.bin     <- latest
//	  als_v1.bin
//
// Blobs are gzip-compressed and carry SHA-256 checksums that are verified
// on load; a failed check surfaces ErrCorrupted rather than a half-decoded
// model. Writes go through a temp file and rename, so a crash mid-save
// leaves the previous version intact.
//
// # Version Management
//
// Versions increase monotonically per algorithm and are assigned by the
// store on Save. Load with version 0 returns the latest; Prune trims old
// versions once a retrain cadence accumulates them.
package storage
