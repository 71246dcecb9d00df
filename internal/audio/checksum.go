package audio

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
	"lukechampine.com/blake3"
)

// maxChecksumWorkers bounds how many files are hashed at once.
const maxChecksumWorkers = 4

// Checksum returns the hex BLAKE3-256 digest of the file at path.
func Checksum(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path) //#nosec G304 -- audio paths are supplied by the caller
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, readerWithContext{ctx: ctx, r: f}); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumAll hashes every path concurrently. The result is in input order.
func ChecksumAll(ctx context.Context, paths []string) ([]string, error) {
	sums := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxChecksumWorkers)
	for i, path := range paths {
		g.Go(func() error {
			sum, err := Checksum(ctx, path)
			if err != nil {
				return err
			}
			sums[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sums, nil
}

// CombineChecksums derives one order-sensitive digest from per-file digests.
func CombineChecksums(sums []string) string {
	h := blake3.New(32, nil)
	for _, s := range sums {
		_, _ = io.WriteString(h, s)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// readerWithContext stops a long copy once ctx is cancelled.
type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
