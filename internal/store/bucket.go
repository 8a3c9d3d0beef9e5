package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/SayHoang/plantidentify/internal/conf"
	"github.com/SayHoang/plantidentify/internal/errors"
)

// PasswordEnvVar overrides the FTP password file when set.
const PasswordEnvVar = "PLANTIDENTIFY_STORE_PASSWORD"

// Bucket is the destination namespace for feedback objects. Object paths are
// slash-separated keys relative to the bucket root; every key is timestamp
// unique so appends never contend.
type Bucket interface {
	Put(ctx context.Context, objectPath, contentType string, data []byte) error
}

// NewBucket builds the configured bucket backend.
func NewBucket(settings *conf.StoreSettings) (Bucket, error) {
	switch settings.Backend {
	case "local":
		return NewLocalBucket(settings.Local.Root)
	case "ftp":
		return NewFTPBucket(&settings.FTP)
	default:
		return nil, errors.Newf("unknown store backend: %q", settings.Backend).
			Category(errors.CategoryConfiguration).
			Component("store").
			Build()
	}
}

// LocalBucket stores objects as files under a root directory.
type LocalBucket struct {
	root string
}

// NewLocalBucket creates a local bucket rooted at root.
func NewLocalBucket(root string) (*LocalBucket, error) {
	if root == "" {
		return nil, errors.Newf("local bucket root is required").
			Category(errors.CategoryConfiguration).
			Component("store").
			Build()
	}
	return &LocalBucket{root: root}, nil
}

// Put writes the object to disk, creating parent directories as needed.
// Content type is carried by the file extension on this backend.
func (b *LocalBucket) Put(_ context.Context, objectPath, _ string, data []byte) error {
	fullPath := filepath.Join(b.root, filepath.FromSlash(objectPath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return errors.Newf("failed to create object directory: %w", err).
			Category(errors.CategoryObjectStore).
			Component("store").
			Context("path", objectPath).
			Build()
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return errors.Newf("failed to write object: %w", err).
			Category(errors.CategoryObjectStore).
			Component("store").
			Context("path", objectPath).
			Build()
	}
	return nil
}

// FTPBucket stores objects on a remote FTP server.
type FTPBucket struct {
	config   conf.FTPBucketSettings
	initOnce sync.Once
	initErr  error
	password string
}

// NewFTPBucket creates an FTP bucket from settings. Credentials are resolved
// lazily on first use so a misconfigured secret surfaces as a per-action
// error rather than failing startup.
func NewFTPBucket(config *conf.FTPBucketSettings) (*FTPBucket, error) {
	if config.Host == "" {
		return nil, errors.Newf("ftp: host is required").
			Category(errors.CategoryConfiguration).
			Component("store").
			Build()
	}
	cfg := *config
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")
	return &FTPBucket{config: cfg}, nil
}

// initialize resolves credentials once; repeated calls are no-ops.
func (b *FTPBucket) initialize() error {
	b.initOnce.Do(func() {
		if password := os.Getenv(PasswordEnvVar); password != "" {
			b.password = password
			return
		}
		if b.config.PasswordFile == "" {
			b.initErr = errors.Newf("ftp: no password provided, set %s or store.ftp.passwordfile", PasswordEnvVar).
				Category(errors.CategoryConfiguration).
				Component("store").
				Build()
			return
		}
		data, err := os.ReadFile(b.config.PasswordFile)
		if err != nil {
			b.initErr = errors.Newf("ftp: failed to read password file: %w", err).
				Category(errors.CategoryConfiguration).
				Component("store").
				Build()
			return
		}
		b.password = strings.TrimSpace(string(data))
	})
	return b.initErr
}

// Put uploads the object, creating missing directories along the key path.
func (b *FTPBucket) Put(ctx context.Context, objectPath, _ string, data []byte) error {
	if err := b.initialize(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", b.config.Host, b.config.Port)
	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(b.config.Timeout))
	if err != nil {
		return errors.Newf("ftp: failed to connect to %s: %w", addr, err).
			Category(errors.CategoryObjectStore).
			Component("store").
			Build()
	}
	defer func() {
		_ = conn.Quit()
	}()

	if err := conn.Login(b.config.Username, b.password); err != nil {
		return errors.Newf("ftp: login failed: %w", err).
			Category(errors.CategoryObjectStore).
			Component("store").
			Build()
	}

	remotePath := b.objectKey(objectPath)
	if err := b.ensureDirs(conn, path.Dir(remotePath)); err != nil {
		return err
	}

	if err := conn.Stor(remotePath, bytes.NewReader(data)); err != nil {
		return errors.Newf("ftp: failed to store object: %w", err).
			Category(errors.CategoryObjectStore).
			Component("store").
			Context("path", objectPath).
			Build()
	}
	return nil
}

// objectKey resolves the remote target for an object. The key stays relative
// to the login working directory unless the base path is absolute, and
// ensureDirs follows the same base so MakeDir and Stor agree on where the
// object lives.
func (b *FTPBucket) objectKey(objectPath string) string {
	return path.Join(b.config.BasePath, objectPath)
}

// ensureDirs creates each segment of dir, tolerating already-existing ones.
func (b *FTPBucket) ensureDirs(conn *ftp.ServerConn, dir string) error {
	for _, built := range dirChain(dir) {
		// MakeDir fails when the directory exists, that is fine.
		_ = conn.MakeDir(built)
	}
	return nil
}

// dirChain lists the directories leading up to dir, shallowest first,
// preserving dir's absolute or relative form.
func dirChain(dir string) []string {
	if dir == "" || dir == "/" || dir == "." {
		return nil
	}
	var chain []string
	var built string
	if strings.HasPrefix(dir, "/") {
		built = "/"
	}
	for _, segment := range strings.Split(strings.Trim(dir, "/"), "/") {
		if segment == "" {
			continue
		}
		if built == "" || built == "/" {
			built += segment
		} else {
			built += "/" + segment
		}
		chain = append(chain, built)
	}
	return chain
}
