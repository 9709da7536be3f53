package vault

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/libvault-go/keyring"
)

// ImportJob names one input of ImportBatch.
type ImportJob struct {
	Name string
	Open func() (io.ReadCloser, error)

	// Commit, when set, records the result before its blocks become
	// eligible for DeleteUnreferenced. See ImportWith.
	Commit func(*FileImportResult) error
}

// FileJob returns an ImportJob reading the local file at path.
func FileJob(path string) ImportJob {
	return ImportJob{
		Name: path,
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// ImportBatch imports several files concurrently, bounded by the configured
// worker count. Results are returned in job order. The first failure
// cancels the remaining jobs and is returned; blocks already written stay.
//
// Files that share content may race to store the same block. The block
// store serializes those writes, so each block is still written once.
func (v *Vault) ImportBatch(ctx context.Context, jobs []ImportJob, sess *keyring.Session) ([]*FileImportResult, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}

	results := make([]*FileImportResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)

	for i, job := range jobs {
		g.Go(func() error {
			rc, err := job.Open()
			if err != nil {
				return fmt.Errorf("vault: open %s: %w", job.Name, err)
			}
			defer rc.Close()

			res, err := v.ImportWith(gctx, rc, sess, job.Commit)
			if err != nil {
				return fmt.Errorf("vault: import %s: %w", job.Name, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	v.log.WithField("files", len(jobs)).Info("batch import complete")
	return results, nil
}
