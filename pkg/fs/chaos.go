package fs

import (
	"errors"
	"io/fs"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection.
type ChaosConfig struct {
	// ReadFailRate controls how often ReadFile fails (EACCES or EIO).
	ReadFailRate float64

	// WriteFailRate controls how often WriteFileAtomic fails
	// (EIO, ENOSPC, EDQUOT or EROFS). A failed write leaves the target
	// untouched.
	WriteFailRate float64

	// ReadDirFailRate controls how often ReadDir fails (EACCES or EIO).
	ReadDirFailRate float64

	// MkdirAllFailRate controls how often MkdirAll fails
	// (EACCES, EIO, ENOSPC or EROFS).
	MkdirAllFailRate float64

	// RemoveFailRate controls how often Remove fails
	// (EACCES, EPERM, EBUSY or EIO).
	RemoveFailRate float64

	// StatFailRate controls how often Stat and Exists fail (EACCES or EIO).
	StatFailRate float64

	// Match restricts injection to the paths it accepts. Nil matches every
	// path. Combined with a rate of 1.0 this gives deterministic failures
	// for a single file.
	Match func(op, path string) bool
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection.
	// This is the default mode for a new [Chaos].
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every operation directly to the underlying FS.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	ReadFails     int64
	WriteFails    int64
	ReadDirFails  int64
	MkdirAllFails int64
	RemoveFails   int64
	StatFails     int64
}

// Total returns the sum of all counters.
func (s ChaosStats) Total() int64 {
	return s.ReadFails + s.WriteFails + s.ReadDirFails + s.MkdirAllFails + s.RemoveFails + s.StatFails
}

// chaosError marks an error as intentionally injected by [Chaos]. It wraps
// an [*fs.PathError] carrying a real [syscall.Errno], so errors.Is and
// os.IsPermission keep working.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string {
	return "chaos: " + e.Err.Error()
}

func (e *chaosError) Unwrap() error {
	return e.Err
}

// IsChaosErr reports whether err (or any wrapped error) was injected by [Chaos].
func IsChaosErr(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

// Chaos wraps an [FS] and injects failures for testing.
//
// Chaos never injects ENOENT: any not-exist result originates from the
// wrapped FS. Each call decides independently whether to inject.
type Chaos struct {
	fs     FS
	config ChaosConfig
	mode   atomic.Uint32

	rngMu sync.Mutex
	rng   *rand.Rand

	readFails     atomic.Int64
	writeFails    atomic.Int64
	readDirFails  atomic.Int64
	mkdirAllFails atomic.Int64
	removeFails   atomic.Int64
	statFails     atomic.Int64
}

// NewChaos wraps underlying. The seed makes injection reproducible.
// Panics if underlying is nil.
func NewChaos(underlying FS, seed int64, config ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	return &Chaos{
		fs:     underlying,
		config: config,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
	}
}

// SetMode switches injection on or off. Safe for concurrent use.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		ReadFails:     c.readFails.Load(),
		WriteFails:    c.writeFails.Load(),
		ReadDirFails:  c.readDirFails.Load(),
		MkdirAllFails: c.mkdirAllFails.Load(),
		RemoveFails:   c.removeFails.Load(),
		StatFails:     c.statFails.Load(),
	}
}

// OpenFile passes through; lock files are not a fault target.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return c.fs.OpenFile(path, flag, perm)
}

// ReadFile reads path with fault injection.
func (c *Chaos) ReadFile(path string) ([]byte, error) {
	err := c.inject("read", path, c.config.ReadFailRate, &c.readFails, syscall.EACCES, syscall.EIO)
	if err != nil {
		return nil, err
	}

	return c.fs.ReadFile(path)
}

// WriteFileAtomic writes path with fault injection.
func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	err := c.inject("write", path, c.config.WriteFailRate, &c.writeFails,
		syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS)
	if err != nil {
		return err
	}

	return c.fs.WriteFileAtomic(path, data, perm)
}

// ReadDir lists path with fault injection.
func (c *Chaos) ReadDir(path string) ([]os.DirEntry, error) {
	err := c.inject("readdir", path, c.config.ReadDirFailRate, &c.readDirFails, syscall.EACCES, syscall.EIO)
	if err != nil {
		return nil, err
	}

	return c.fs.ReadDir(path)
}

// MkdirAll creates path with fault injection.
func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	err := c.inject("mkdir", path, c.config.MkdirAllFailRate, &c.mkdirAllFails,
		syscall.EACCES, syscall.EIO, syscall.ENOSPC, syscall.EROFS)
	if err != nil {
		return err
	}

	return c.fs.MkdirAll(path, perm)
}

// Stat stats path with fault injection.
func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	err := c.inject("stat", path, c.config.StatFailRate, &c.statFails, syscall.EACCES, syscall.EIO)
	if err != nil {
		return nil, err
	}

	return c.fs.Stat(path)
}

// Exists checks path with fault injection.
func (c *Chaos) Exists(path string) (bool, error) {
	err := c.inject("stat", path, c.config.StatFailRate, &c.statFails, syscall.EACCES, syscall.EIO)
	if err != nil {
		return false, err
	}

	return c.fs.Exists(path)
}

// Remove deletes path with fault injection.
func (c *Chaos) Remove(path string) error {
	err := c.inject("remove", path, c.config.RemoveFailRate, &c.removeFails,
		syscall.EACCES, syscall.EPERM, syscall.EBUSY, syscall.EIO)
	if err != nil {
		return err
	}

	return c.fs.Remove(path)
}

func (c *Chaos) inject(op, path string, rate float64, counter *atomic.Int64, errnos ...syscall.Errno) error {
	if ChaosMode(c.mode.Load()) != ChaosModeActive || rate <= 0 {
		return nil
	}

	if c.config.Match != nil && !c.config.Match(op, path) {
		return nil
	}

	c.rngMu.Lock()
	hit := c.rng.Float64() < rate
	errno := errnos[c.rng.IntN(len(errnos))]
	c.rngMu.Unlock()

	if !hit {
		return nil
	}

	counter.Add(1)

	return &chaosError{Err: &fs.PathError{Op: op, Path: path, Err: errno}}
}

// Compile-time interface check.
var _ FS = (*Chaos)(nil)
