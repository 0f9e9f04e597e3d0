// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability.
//
// Production code injects [Real]; tests inject [Fake] and drive time
// with [FakeClock.Advance]. Anything in this repository that reads the
// wall clock or schedules periodic work (the artifact emission
// throttle, the connection liveness probe) takes a [Clock] instead of
// calling the time package directly, so its behavior is deterministic
// under test.
package clock
