// Copyright 2026 The AerogelOS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/Rangdy-Kor/AerogelOS/pkg/atomicbitops"
)

// RateLimited is a Logger that passes at most one message per period to the
// underlying logger and counts the messages it drops. The next message that
// gets through reports how many were dropped before it.
type RateLimited struct {
	logger Logger
	limit  *rate.Limiter

	// suppressed counts every dropped message; pending only those since
	// the last message that was passed on.
	suppressed atomicbitops.Uint64
	pending    atomicbitops.Uint64
}

// BasicRateLimitedLogger returns a Logger that logs to the global logger no
// more than once per the provided duration.
func BasicRateLimitedLogger(every time.Duration) *RateLimited {
	return RateLimitedLogger(Log(), every)
}

// RateLimitedLogger returns a Logger that logs to the provided logger no more
// than once per the provided duration.
func RateLimitedLogger(logger Logger, every time.Duration) *RateLimited {
	return newRateLimited(logger, rate.NewLimiter(rate.Every(every), 1))
}

func newRateLimited(logger Logger, limit *rate.Limiter) *RateLimited {
	return &RateLimited{logger: logger, limit: limit}
}

// Suppressed returns the number of messages dropped so far.
func (rl *RateLimited) Suppressed() uint64 {
	return rl.suppressed.Load()
}

func (rl *RateLimited) emit(logf func(string, ...any), format string, v []any) {
	if !rl.limit.Allow() {
		rl.suppressed.Add(1)
		rl.pending.Add(1)
		return
	}
	if n := rl.pending.Swap(0); n > 0 {
		format += " (%d earlier messages suppressed)"
		v = append(v[:len(v):len(v)], n)
	}
	logf(format, v...)
}

// Debugf implements Logger.Debugf.
func (rl *RateLimited) Debugf(format string, v ...any) {
	rl.emit(rl.logger.Debugf, format, v)
}

// Infof implements Logger.Infof.
func (rl *RateLimited) Infof(format string, v ...any) {
	rl.emit(rl.logger.Infof, format, v)
}

// Warningf implements Logger.Warningf.
func (rl *RateLimited) Warningf(format string, v ...any) {
	rl.emit(rl.logger.Warningf, format, v)
}

// IsLogging implements Logger.IsLogging.
func (rl *RateLimited) IsLogging(level Level) bool {
	return rl.logger.IsLogging(level)
}
