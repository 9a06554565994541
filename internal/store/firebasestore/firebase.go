// Package firebasestore implements store.Store on the Firebase Realtime Database.
package firebasestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"

	"github.com/rewired-gh/solarcast/internal/store"
)

// Config holds connection settings. Credentials is the raw service account JSON;
// when empty, CredentialsFile is used, and when both are empty the default
// application credentials apply.
type Config struct {
	DatabaseURL     string
	Credentials     []byte
	CredentialsFile string
}

// Store talks to one Realtime Database instance.
type Store struct {
	client *db.Client
}

// New connects to the database described by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("firebase database URL is required")
	}

	var opts []option.ClientOption
	switch {
	case len(cfg.Credentials) > 0:
		opts = append(opts, option.WithCredentialsJSON(cfg.Credentials))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: cfg.DatabaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase database client: %w", err)
	}
	return &Store{client: client}, nil
}

// Get returns the document at path, or nil when the node is empty.
func (s *Store) Get(ctx context.Context, path string) (map[string]any, error) {
	var raw json.RawMessage
	if err := s.client.NewRef(path).Get(ctx, &raw); err != nil {
		return nil, store.Unavailable("get", path, err)
	}
	return decodeNode(path, raw)
}

// decodeNode turns a fetched node into a document. A scalar or array node
// is malformed, not a transport failure.
func decodeNode(path string, raw json.RawMessage) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, store.Malformed(path, err)
	}
	return doc, nil
}

// Set overwrites the node at path.
func (s *Store) Set(ctx context.Context, path string, doc map[string]any) error {
	if err := s.client.NewRef(path).Set(ctx, doc); err != nil {
		return store.Unavailable("set", path, err)
	}
	return nil
}

// Update merges fields into the node at path.
func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := s.client.NewRef(path).Update(ctx, fields); err != nil {
		return store.Unavailable("update", path, err)
	}
	return nil
}

// LastChild runs orderByKey + limitToLast(1) on prefix.
func (s *Store) LastChild(ctx context.Context, prefix string) (string, bool, error) {
	nodes, err := s.client.NewRef(prefix).OrderByKey().LimitToLast(1).GetOrdered(ctx)
	if err != nil {
		return "", false, store.Unavailable("last_child", prefix, err)
	}
	if len(nodes) == 0 {
		return "", false, nil
	}
	return nodes[len(nodes)-1].Key(), true, nil
}

// Close is a no-op; the SDK client holds no closable resources.
func (s *Store) Close() error { return nil }
