package archive

import (
	"context"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Archiver keeps the raw body of every received webhook for audits and
// replays.
type Archiver interface {
	Archive(ctx context.Context, provider, eventID string, payload []byte) error
	Close() error
}

type GCSArchiver struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

func NewGCSArchiver(ctx context.Context, bucket, credentialsFile string) (*GCSArchiver, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucket, now: time.Now}, nil
}

func ObjectPath(provider, eventID string, at time.Time) string {
	return path.Join("webhooks", provider, at.UTC().Format("2006/01/02"), eventID+".json")
}

func (a *GCSArchiver) Archive(ctx context.Context, provider, eventID string, payload []byte) error {
	obj := a.client.Bucket(a.bucket).Object(ObjectPath(provider, eventID, a.now()))
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{"provider": provider}
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (a *GCSArchiver) Close() error {
	return a.client.Close()
}

type Nop struct{}

func (Nop) Archive(context.Context, string, string, []byte) error { return nil }
func (Nop) Close() error                                          { return nil }
