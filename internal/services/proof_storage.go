package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ProofStorage persists payment receipts and returns where they live.
type ProofStorage interface {
	SavePaymentProof(ctx context.Context, orderID string, data []byte) (string, error)
}

// LocalProofStorage writes receipts under <dir>/payment-proofs.
type LocalProofStorage struct {
	dir string
	now func() time.Time
}

func NewLocalProofStorage(uploadDir string) *LocalProofStorage {
	return &LocalProofStorage{dir: filepath.Join(uploadDir, "payment-proofs"), now: time.Now}
}

// ProofFileName is the deterministic name for a receipt taken at t.
func ProofFileName(orderID string, t time.Time) string {
	return fmt.Sprintf("proof-%s-%d.jpg", orderID, t.UnixMilli())
}

func (l *LocalProofStorage) SavePaymentProof(ctx context.Context, orderID string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create proof dir: %w", err)
	}
	path := filepath.Join(l.dir, ProofFileName(orderID, l.now()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write proof: %w", err)
	}
	return path, nil
}
