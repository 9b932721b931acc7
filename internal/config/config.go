// Package config parses the constructor-time options for the blobcore
// transfer engine from flags and environment variables.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Options are the recognized constructor-time options (spec §6).
type Options struct {
	BlockSize                 uint32
	WindowSizeInBlocks        uint32
	RetransmitInterval        time.Duration
	RetransmitAttemptCount    int
	ScheduledSendInterval     time.Duration
	TimeoutInterval           time.Duration
	BinarySizeLimit           int64
	TerminateByTimeoutEnabled bool
}

// Defaults per spec §6.
const (
	DefaultBlockSize              uint32        = 1000
	DefaultWindowSizeInBlocks     uint32        = 64
	DefaultRetransmitInterval     time.Duration = 3 * time.Second
	DefaultRetransmitAttemptCount int           = 3
	DefaultScheduledSendInterval  time.Duration = 5 * time.Second
	DefaultTimeoutInterval        time.Duration = 20 * time.Second
	DefaultBinarySizeLimit        int64         = 1 << 30 // 1 GiB
)

// MinWindow is the lower clamp bound for a transfer's window size.
const MinWindow uint32 = 1

// Default returns Options populated with the spec §6 defaults.
func Default() Options {
	return Options{
		BlockSize:                 DefaultBlockSize,
		WindowSizeInBlocks:        DefaultWindowSizeInBlocks,
		RetransmitInterval:        DefaultRetransmitInterval,
		RetransmitAttemptCount:    DefaultRetransmitAttemptCount,
		ScheduledSendInterval:     DefaultScheduledSendInterval,
		TimeoutInterval:           DefaultTimeoutInterval,
		BinarySizeLimit:           DefaultBinarySizeLimit,
		TerminateByTimeoutEnabled: true,
	}
}

// Normalize fills in zero fields with defaults and clamps to sane ranges,
// mirroring the teacher's NormalizeParams clamp-and-default style.
func (o Options) Normalize() Options {
	out := o
	if out.BlockSize == 0 {
		out.BlockSize = DefaultBlockSize
	}
	if out.WindowSizeInBlocks == 0 {
		out.WindowSizeInBlocks = DefaultWindowSizeInBlocks
	}
	if out.WindowSizeInBlocks < MinWindow {
		out.WindowSizeInBlocks = MinWindow
	}
	if out.RetransmitInterval <= 0 {
		out.RetransmitInterval = DefaultRetransmitInterval
	}
	if out.RetransmitAttemptCount <= 0 {
		out.RetransmitAttemptCount = DefaultRetransmitAttemptCount
	}
	if out.ScheduledSendInterval <= 0 {
		out.ScheduledSendInterval = DefaultScheduledSendInterval
	}
	if out.TimeoutInterval <= 0 {
		out.TimeoutInterval = DefaultTimeoutInterval
	}
	if out.BinarySizeLimit <= 0 {
		out.BinarySizeLimit = DefaultBinarySizeLimit
	}
	return out
}

// ParseOptions parses Options from flags and environment variables.
// Flags take precedence over environment variables, which take precedence
// over defaults.
func ParseOptions() Options {
	return parseOptionsWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseOptionsWithFlagSet is an internal helper for testing with isolated
// flag sets.
func parseOptionsWithFlagSet(fs *flag.FlagSet, args []string) Options {
	cfg := Default()

	if v := os.Getenv("BLOCKSEND_BLOCK_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.BlockSize = uint32(n)
		}
	}
	if v := os.Getenv("BLOCKSEND_WINDOW_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.WindowSizeInBlocks = uint32(n)
		}
	}
	if v := os.Getenv("BLOCKSEND_RETRANSMIT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetransmitInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("BLOCKSEND_RETRANSMIT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetransmitAttemptCount = n
		}
	}
	if v := os.Getenv("BLOCKSEND_SCHEDULED_SEND_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ScheduledSendInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("BLOCKSEND_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("BLOCKSEND_BINARY_SIZE_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.BinarySizeLimit = n
		}
	}
	if v := os.Getenv("BLOCKSEND_TERMINATE_BY_TIMEOUT"); v != "" {
		if n, err := strconv.ParseBool(v); err == nil {
			cfg.TerminateByTimeoutEnabled = n
		}
	}

	var blockSize, windowSize uint64
	var retransmitSeconds, scheduledSendSeconds, timeoutSeconds int
	var binarySizeLimit int64

	fs.Uint64Var(&blockSize, "block-size", uint64(cfg.BlockSize), "bytes per data block")
	fs.Uint64Var(&windowSize, "window-size", uint64(cfg.WindowSizeInBlocks), "initial receive window in blocks")
	fs.IntVar(&retransmitSeconds, "retransmit-interval", int(cfg.RetransmitInterval/time.Second), "acknowledgement retransmit period in seconds")
	fs.IntVar(&cfg.RetransmitAttemptCount, "retransmit-attempts", cfg.RetransmitAttemptCount, "acknowledgement send attempts per stall, counting the first (at most this many minus one retransmissions)")
	fs.IntVar(&scheduledSendSeconds, "scheduled-send-interval", int(cfg.ScheduledSendInterval/time.Second), "scheduler pump period in seconds")
	fs.IntVar(&timeoutSeconds, "timeout-interval", int(cfg.TimeoutInterval/time.Second), "inactivity timeout in seconds")
	fs.Int64Var(&binarySizeLimit, "binary-size-limit", cfg.BinarySizeLimit, "maximum blob size in bytes")
	fs.BoolVar(&cfg.TerminateByTimeoutEnabled, "terminate-by-timeout", cfg.TerminateByTimeoutEnabled, "terminate stalled transfers by timeout")

	fs.Parse(args)

	cfg.BlockSize = uint32(blockSize)
	cfg.WindowSizeInBlocks = uint32(windowSize)
	cfg.RetransmitInterval = time.Duration(retransmitSeconds) * time.Second
	cfg.ScheduledSendInterval = time.Duration(scheduledSendSeconds) * time.Second
	cfg.TimeoutInterval = time.Duration(timeoutSeconds) * time.Second
	cfg.BinarySizeLimit = binarySizeLimit

	return cfg.Normalize()
}
