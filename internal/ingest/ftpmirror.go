package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// Mirror pulls raw station drops from the collaborator FTP site into a local
// directory, so discovery and loading work the same for mirrored files and
// files copied in by hand. The remote layout is one directory per station
// with CSV exports inside.
type Mirror struct {
	addr    string
	root    string
	timeout time.Duration
}

func NewMirror(addr, root string) *Mirror {
	return &Mirror{addr: addr, root: root, timeout: 30 * time.Second}
}

// Sync downloads every CSV under the remote root into destDir, preserving
// the station directory level. Files already present locally are left
// alone. It returns the local paths written.
func (m *Mirror) Sync(ctx context.Context, destDir string) ([]string, error) {
	conn, err := ftp.Dial(m.addr, ftp.DialWithTimeout(m.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	entries, err := conn.List(m.root)
	if err != nil {
		return nil, fmt.Errorf("ftp list: %w", err)
	}

	var written []string
	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		switch entry.Type {
		case ftp.EntryTypeFolder:
			paths, err := m.syncDir(conn, path.Join(m.root, entry.Name), filepath.Join(destDir, entry.Name))
			if err != nil {
				return written, err
			}
			written = append(written, paths...)
		case ftp.EntryTypeFile:
			local := filepath.Join(destDir, entry.Name)
			if !isCSVName(entry.Name) || fileExists(local) {
				continue
			}
			p, err := m.retrFile(conn, path.Join(m.root, entry.Name), local)
			if err != nil {
				return written, err
			}
			written = append(written, p)
		}
	}

	log.Printf("ingest: mirrored %d files from %s", len(written), m.addr)
	return written, nil
}

func (m *Mirror) syncDir(conn *ftp.ServerConn, remoteDir, localDir string) ([]string, error) {
	entries, err := conn.List(remoteDir)
	if err != nil {
		return nil, fmt.Errorf("ftp list: %w", err)
	}

	var written []string
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile || !isCSVName(entry.Name) {
			continue
		}
		local := filepath.Join(localDir, entry.Name)
		if fileExists(local) {
			continue
		}
		p, err := m.retrFile(conn, path.Join(remoteDir, entry.Name), local)
		if err != nil {
			return written, err
		}
		written = append(written, p)
	}
	return written, nil
}

func (m *Mirror) retrFile(conn *ftp.ServerConn, remote, local string) (string, error) {
	resp, err := conn.Retr(remote)
	if err != nil {
		return "", fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(local, body, 0o644); err != nil {
		return "", err
	}
	return local, nil
}

func isCSVName(name string) bool {
	return strings.EqualFold(path.Ext(name), ".csv")
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
