package storage

import (
	"bytes"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// Config carries the Supabase project coordinates for the audio bucket.
type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Supabase stores generated narration assets in a Supabase storage bucket.
type Supabase struct {
	client  *supabase.Client
	baseURL string
	bucket  string
}

func New(config Config) (*Supabase, error) {
	client, err := supabase.NewClient(config.URL, config.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Supabase{
		client:  client,
		baseURL: strings.TrimRight(config.URL, "/"),
		bucket:  config.Bucket,
	}, nil
}

// Upload writes data under key and returns the public URL of the object.
// Uploads are upserts so regenerating an asset replaces it in place.
func (s *Supabase) Upload(key, contentType string, data []byte) (string, error) {
	upsert := true
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("upload to supabase: %w", err)
	}
	return s.PublicURL(key), nil
}

// Download fetches an object's bytes by key.
func (s *Supabase) Download(key string) ([]byte, error) {
	data, err := s.client.Storage.DownloadFile(s.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("download from supabase: %w", err)
	}
	return data, nil
}

// PublicURL composes the unauthenticated URL for a public-bucket object.
func (s *Supabase) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}
