// Package snapshot exports the live collection index to S3-compatible
// object storage after a successful crawl, the supplemental audit/export
// feature of SPEC_FULL.md §5.2 grounded on the original Rust inmor
// project's collection-export tooling (original_source/), which the
// distilled spec.md drops in favor of treating persistence as purely an
// internal key-value concern.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sunet/inmor-go/internal/entity"
	"github.com/sunet/inmor-go/internal/store"
)

// Exporter writes periodic snapshots of the live collection to S3.
type Exporter struct {
	Client *s3.Client
	Bucket string
	Store  store.Store
	Now    func() time.Time
}

// New constructs an Exporter.
func New(client *s3.Client, bucket string, st store.Store) *Exporter {
	return &Exporter{Client: client, Bucket: bucket, Store: st, Now: time.Now}
}

// snapshotObject is the JSON document written to S3.
type snapshotObject struct {
	GeneratedAt int64                    `json:"generated_at"`
	Entities    []entity.CollectionEntry `json:"entities"`
}

// Export writes the current live collection to
// s3://{Bucket}/snapshots/{unix-timestamp}.json, returning the object key.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	entries, err := e.Store.ListLive(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("snapshot: list live entries: %w", err)
	}

	now := e.Now()
	obj := snapshotObject{GeneratedAt: now.Unix(), Entities: entries}
	raw, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("snapshot: marshal: %w", err)
	}

	key := fmt.Sprintf("snapshots/%d.json", now.Unix())
	_, err = e.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("snapshot: put object %s: %w", key, err)
	}
	return key, nil
}
