// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

// Package middleware provides HTTP middleware for the Wayfarer API:
// request ID propagation, Prometheus instrumentation, and gzip
// compression. All middleware uses the standard
// func(http.Handler) http.Handler shape so it composes with chi's
// r.Use().
package middleware
