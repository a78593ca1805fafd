// Package storage puts, lists, deletes and reads archived objects in an S3
// bucket or a local directory.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/block/coldarchive/pkg/destinations"
)

// Store holds objects addressed by slash separated keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, keys []string) error
	Open(ctx context.Context, key string) (Object, error)
	// URI is the fully qualified location of key, e.g. s3://bucket/key.
	URI(key string) string
}

// Object is an open object supporting random access reads.
type Object interface {
	io.ReaderAt
	io.Seeker
	io.Closer
}

type ConfigLoader func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error)

// Options configures a Store. Bucket is the root directory for a local
// store.
type Options struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseTLS    bool
}

func NewStore(ctx context.Context, tp destinations.DstType, opts Options, loader ConfigLoader) (Store, error) {
	switch tp {
	case destinations.Local:
		return NewLocalStore(opts.Bucket)
	case destinations.S3:
		return NewS3Store(ctx, opts, loader)
	}

	return nil, fmt.Errorf("unsupported destination type: %s", tp)
}
