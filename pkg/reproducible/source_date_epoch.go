// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package reproducible provides timestamps that honor the SOURCE_DATE_EPOCH convention.
//
// https://reproducible-builds.org/specs/source-date-epoch/
package reproducible

import (
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	nowOnce sync.Once
	now     time.Time
)

// Now returns SOURCE_DATE_EPOCH if it is set to a valid integer, or else the time of the first
// call.  Every call in a process returns the same value.
func Now() time.Time {
	nowOnce.Do(func() {
		now = parseEpoch(os.Getenv("SOURCE_DATE_EPOCH"), time.Now)
	})
	return now
}

func parseEpoch(str string, fallback func() time.Time) time.Time {
	secs, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return fallback().UTC().Truncate(time.Second)
	}
	return time.Unix(secs, 0).UTC()
}

// Timestamp returns orig, or Now() if orig is the zero time.
func Timestamp(orig time.Time) time.Time {
	if orig.IsZero() {
		return Now()
	}
	return orig
}
