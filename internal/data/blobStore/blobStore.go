package blobStore

import (
	"context"
	"errors"
	"path"
	"strings"
)

var ErrNotFound = errors.New("blob not found")

// Store holds uploaded source documents under logical slash-separated paths.
type Store interface {
	Put(ctx context.Context, p string, data []byte) error
	Get(ctx context.Context, p string) ([]byte, error)
	Delete(ctx context.Context, p string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, p string) (bool, error)
}

// DocumentPath is <job_id>/documents/<kind>/<filename>.
func DocumentPath(jobID, kind, filename string) string {
	return path.Join(jobID, "documents", kind, path.Base(filename))
}

func DocumentPrefix(jobID, kind string) string {
	return path.Join(jobID, "documents", kind) + "/"
}

func JobPrefix(jobID string) string {
	return jobID + "/"
}

// cleanPath normalises p and strips anything that would climb above the root.
func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// cleanPrefix is cleanPath that keeps a trailing slash, so "a/b/" never matches "a/bc".
func cleanPrefix(prefix string) string {
	clean := cleanPath(prefix)
	if clean != "" && strings.HasSuffix(prefix, "/") {
		clean += "/"
	}
	return clean
}
