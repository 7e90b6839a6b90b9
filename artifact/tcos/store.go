//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

// Package tcos provides a Tencent Cloud Object Storage (COS) implementation of
// the artifact store.
//
// Stored paths are object keys of the form "{namespace}/{filename}", e.g.
// "sessions/<session-id>/image_v1_ab12cd34.png". Copy is performed server-side
// so artifact bytes never round-trip through the process.
//
// Authentication:
// The store requires COS credentials which can be provided via:
// - Environment variables: TCOS_SECRETID and TCOS_SECRETKEY (recommended)
// - Option functions: WithSecretID() and WithSecretKey()
package tcos

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/artloom/artloom/artifact"
)

var _ artifact.Store = (*Store)(nil)

const defaultTimeout = 60 * time.Second

// Store is a Tencent Cloud Object Storage implementation of the artifact
// store.
type Store struct {
	cosClient *cos.Client
	bucketURL *url.URL
}

// New creates a COS artifact store for the given bucket URL.
//
// Example usage:
//
//	// Using environment variables (set TCOS_SECRETID and TCOS_SECRETKEY)
//	store, err := tcos.New("https://bucket.cos.region.myqcloud.com")
//
//	// Using option functions
//	store, err := tcos.New(
//	    "https://bucket.cos.region.myqcloud.com",
//	    tcos.WithSecretID("your-secret-id"),
//	    tcos.WithSecretKey("your-secret-key"),
//	    tcos.WithTimeout(30*time.Second),
//	)
func New(bucketURL string, opts ...Option) (*Store, error) {
	options := &options{
		timeout:   defaultTimeout,
		secretID:  os.Getenv("TCOS_SECRETID"),
		secretKey: os.Getenv("TCOS_SECRETKEY"),
	}
	for _, opt := range opts {
		opt(options)
	}

	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("parse bucket url %s: %w", bucketURL, err)
	}
	b := &cos.BaseURL{BucketURL: u}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: options.timeout,
			Transport: &cos.AuthorizationTransport{
				SecretID:  options.secretID,
				SecretKey: options.secretKey,
			},
		}
	}

	return &Store{
		cosClient: cos.NewClient(b, httpClient),
		bucketURL: u,
	}, nil
}

// Save uploads a caller-owned local file to dir/filename.
func (s *Store) Save(ctx context.Context, srcFile, dir, filename string) (string, error) {
	key, err := objectKey(dir, filename)
	if err != nil {
		return "", err
	}
	_, _, err = s.cosClient.Object.Upload(ctx, key, srcFile, nil)
	if err != nil {
		return "", fmt.Errorf("upload artifact %s: %w", key, err)
	}
	return key, nil
}

// Copy duplicates a stored object into dir/filename with a server-side copy.
func (s *Store) Copy(ctx context.Context, srcPath, dir, filename string) (string, error) {
	key, err := objectKey(dir, filename)
	if err != nil {
		return "", err
	}
	sourceURL := fmt.Sprintf("%s/%s", s.bucketURL.Host, srcPath)
	_, _, err = s.cosClient.Object.Copy(ctx, key, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("copy artifact %s to %s: %w", srcPath, key, err)
	}
	return key, nil
}

// Exists reports whether the object at path is present in the bucket.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.cosClient.Object.Head(ctx, path, nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("head artifact %s: %w", path, err)
	}
	return true, nil
}

// Delete removes a single object. Deleting an absent object is not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.cosClient.Object.Delete(ctx, path)
	if err != nil && !cos.IsNotFoundError(err) {
		return fmt.Errorf("delete artifact %s: %w", path, err)
	}
	return nil
}

// RemoveAll removes every object under the namespace prefix. Listing is
// paginated, so namespaces larger than one listing page are fully removed.
func (s *Store) RemoveAll(ctx context.Context, dir string) error {
	prefix := strings.TrimSuffix(dir, "/") + "/"

	marker := ""
	for {
		result, _, err := s.cosClient.Bucket.Get(ctx, &cos.BucketGetOptions{
			Prefix: prefix,
			Marker: marker,
		})
		if err != nil {
			if cos.IsNotFoundError(err) {
				return nil
			}
			return fmt.Errorf("list namespace %s: %w", dir, err)
		}

		for _, obj := range result.Contents {
			_, err := s.cosClient.Object.Delete(ctx, obj.Key)
			if err != nil && !cos.IsNotFoundError(err) {
				return fmt.Errorf("delete artifact %s: %w", obj.Key, err)
			}
		}

		if !result.IsTruncated {
			return nil
		}
		marker = result.NextMarker
	}
}

// objectKey builds the object key and rejects names that would escape the
// namespace.
func objectKey(dir, filename string) (string, error) {
	if filename == "" || filename != path.Base(filename) {
		return "", fmt.Errorf("invalid artifact filename %q", filename)
	}
	cleaned := path.Clean(dir)
	if cleaned == "." || cleaned == "/" || strings.HasPrefix(cleaned, "..") ||
		strings.HasPrefix(cleaned, "/") {
		return "", fmt.Errorf("invalid artifact namespace %q", dir)
	}
	return cleaned + "/" + filename, nil
}
