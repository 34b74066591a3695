package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/lease"
	"github.com/rocjay1/rm-recurring/internal/recurring"
)

const (
	leaseSeconds = 60
	leaseRenewal = 20 * time.Second
)

// BlobLock serialises due-payment runs across function instances by holding
// a lease on a marker blob. The lease is renewed in the background until
// the returned unlock func is called, and expires on its own if the holder
// dies.
type BlobLock struct {
	svc       *BlobService
	container string
	blob      string
}

// NewLock returns a lock backed by containerName/blobName.
func (s *BlobService) NewLock(containerName, blobName string) *BlobLock {
	return &BlobLock{svc: s, container: containerName, blob: blobName}
}

func (l *BlobLock) blobClient() *blockblob.Client {
	return l.svc.client.ServiceClient().NewContainerClient(l.container).NewBlockBlobClient(l.blob)
}

// ensureMarker creates the empty marker blob on first use.
func (l *BlobLock) ensureMarker(ctx context.Context, bb *blockblob.Client) error {
	if err := l.svc.ensureContainer(ctx, l.container); err != nil {
		return err
	}
	if _, err := bb.GetProperties(ctx, nil); err == nil {
		return nil
	} else if !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("failed to read lock blob: %w", err)
	}
	if _, err := bb.UploadBuffer(ctx, []byte{}, nil); err != nil &&
		!bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.LeaseIDMissing) {
		return fmt.Errorf("failed to create lock blob: %w", err)
	}
	return nil
}

// TryLock acquires the lease or returns recurring.ErrProcessorBusy when
// another instance holds it.
func (l *BlobLock) TryLock(ctx context.Context) (func(), error) {
	bb := l.blobClient()
	if err := l.ensureMarker(ctx, bb); err != nil {
		return nil, err
	}

	lc, err := lease.NewBlobClient(bb, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lease client: %w", err)
	}
	if _, err := lc.AcquireLease(ctx, leaseSeconds, nil); err != nil {
		if bloberror.HasCode(err, bloberror.LeaseAlreadyPresent) {
			return nil, recurring.ErrProcessorBusy
		}
		return nil, fmt.Errorf("failed to acquire lease on %s/%s: %w", l.container, l.blob, err)
	}
	slog.Info("processor lease acquired", "container", l.container, "blob", l.blob, "lease_id", *lc.LeaseID())

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(leaseRenewal)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if _, err := lc.RenewLease(context.Background(), nil); err != nil {
					slog.Error("failed to renew processor lease", "blob", l.blob, "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			if _, err := lc.ReleaseLease(context.Background(), nil); err != nil {
				slog.Warn("failed to release processor lease; it will expire", "blob", l.blob, "error", err)
			}
		})
	}, nil
}
