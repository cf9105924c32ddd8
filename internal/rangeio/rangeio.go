// Package rangeio implements the range writer/reader (C5): gather-scatter
// of arbitrary byte ranges across block boundaries, with zero-fill on
// holes. Reads of several distinct blocks may run concurrently (grounded
// on the teacher's parallel-crypto block processing); writes never do,
// since the spec requires blocks be written low-to-high and only the
// final counter write is an observable commit.
package rangeio

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/teefs/secobjfs/internal/blockengine"
	"github.com/teefs/secobjfs/internal/layout"
	"github.com/teefs/secobjfs/internal/objmeta"
)

// parallelThreshold is the minimum number of blocks a read range must
// span before ReadRange bothers fanning out across goroutines.
const parallelThreshold = 4

// ReadRange reads length bytes starting at pos from meta's committed
// blocks into a freshly allocated buffer. Blocks are read independently
// and can be decrypted concurrently since a read never mutates meta.
func ReadRange(eng *blockengine.Engine, fd int, uuid [16]byte, meta objmeta.Meta, pos int64, length int64) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}
	startBlock := layout.BlockOf(pos)
	endBlock := layout.BlockOf(pos + length - 1)
	numBlocks := endBlock - startBlock + 1

	blocks := make([][]byte, numBlocks)
	readOne := func(i uint64) error {
		b, err := eng.ReadBlock(fd, uuid, meta, startBlock+i)
		if err != nil {
			return err
		}
		blocks[i] = b
		return nil
	}

	if numBlocks >= parallelThreshold {
		if err := readBlocksConcurrently(numBlocks, readOne); err != nil {
			return nil, err
		}
	} else {
		for i := uint64(0); i < numBlocks; i++ {
			if err := readOne(i); err != nil {
				return nil, err
			}
		}
	}

	out := make([]byte, length)
	pos64 := pos
	remaining := length
	var outOff int64
	for i := uint64(0); i < numBlocks; i++ {
		off := pos64 % layout.BlockSize
		chunk := layout.BlockSize - off
		if chunk > remaining {
			chunk = remaining
		}
		copy(out[outOff:outOff+chunk], blocks[i][off:off+chunk])
		pos64 += chunk
		remaining -= chunk
		outOff += chunk
	}
	return out, nil
}

// readBlocksConcurrently runs fn(0..n) across a bounded worker pool and
// returns the first error encountered, if any. Grounded on the teacher's
// parallel-crypto worker-count heuristic, trimmed to a fixed cap: at
// BLOCK_SIZE=256 bytes the CPU-feature-aware batching the teacher did is
// pure overhead, so this keeps only the "fan out across goroutines when
// there's enough work" idea.
func readBlocksConcurrently(n uint64, fn func(i uint64) error) error {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	if uint64(workers) > n {
		workers = int(n)
	}
	var wg sync.WaitGroup
	errs := make([]error, n)
	next := make(chan uint64)
	go func() {
		for i := uint64(0); i < n; i++ {
			next <- i
		}
		close(next)
	}()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				errs[i] = fn(i)
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteRange performs an out-of-place range write into candidate: for
// each touched block, the existing block is read (a never-written slot
// is treated as all-zero), patched with data[off:off+chunk] (or
// zero-filled when data is nil, used for truncate-extend), then written
// via WriteBlock. Blocks are written low-to-high, sequentially: only the
// final commit of candidate is an observable state change, but the
// writes themselves must land in block order.
func WriteRange(eng *blockengine.Engine, fd int, uuid [16]byte, candidate *objmeta.Meta, pos int64, data []byte, length int64) error {
	if length == 0 {
		return nil
	}
	startBlock := layout.BlockOf(pos)
	endBlock := layout.BlockOf(pos + length - 1)

	pos64 := pos
	remaining := length
	var dataOff int64
	for n := startBlock; n <= endBlock; n++ {
		off := pos64 % layout.BlockSize
		chunk := layout.BlockSize - off
		if chunk > remaining {
			chunk = remaining
		}

		block, err := eng.ReadBlock(fd, uuid, *candidate, n)
		if err != nil {
			return fmt.Errorf("rangeio: write range: read block %d for patch: %w", n, err)
		}
		if data == nil {
			for i := off; i < off+chunk; i++ {
				block[i] = 0
			}
		} else {
			copy(block[off:off+chunk], data[dataOff:dataOff+chunk])
		}
		if err := eng.WriteBlock(fd, uuid, candidate, n, block); err != nil {
			return fmt.Errorf("rangeio: write range: write block %d: %w", n, err)
		}

		pos64 += chunk
		remaining -= chunk
		dataOff += chunk
	}

	if uint64(pos64) > candidate.Length {
		candidate.Length = uint64(pos64)
	}
	return nil
}
