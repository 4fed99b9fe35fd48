package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPStore writes blobs to an FTP server whose upload directory is also
// served over HTTP at baseURL.
type FTPStore struct {
	addr     string
	user     string
	password string
	baseURL  string
	dir      string

	mu   sync.Mutex
	conn *ftp.ServerConn
}

func NewFTPStore(host, port, user, password, baseURL, dir string) *FTPStore {
	return &FTPStore{
		addr:     host + ":" + port,
		user:     user,
		password: password,
		baseURL:  strings.TrimRight(baseURL, "/"),
		dir:      strings.Trim(dir, "/"),
	}
}

// connect must be called with mu held.
func (s *FTPStore) connect(ctx context.Context) error {
	if s.conn != nil {
		if err := s.conn.NoOp(); err == nil {
			return nil
		}
		s.conn.Quit()
		s.conn = nil
	}

	conn, err := ftp.Dial(s.addr, ftp.DialWithTimeout(10*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to FTP: %w", err)
	}
	if err := conn.Login(s.user, s.password); err != nil {
		conn.Quit()
		return fmt.Errorf("failed to login to FTP: %w", err)
	}
	s.conn = conn
	return nil
}

func (s *FTPStore) remotePath(key string) string {
	if s.dir == "" {
		return key
	}
	return path.Join(s.dir, key)
}

func (s *FTPStore) Put(ctx context.Context, key string, data io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		return "", err
	}
	remote := s.remotePath(key)
	if dir := path.Dir(remote); dir != "." {
		// MakeDir fails when the directory exists; Stor reports the real problem.
		_ = s.conn.MakeDir(dir)
	}
	if err := s.conn.Stor(remote, data); err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return s.baseURL + "/" + remote, nil
}

func (s *FTPStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		return err
	}
	if err := s.conn.Delete(s.remotePath(key)); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *FTPStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		err := s.conn.Quit()
		s.conn = nil
		return err
	}
	return nil
}
