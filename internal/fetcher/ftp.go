package fetcher

import (
	"context"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures an FTPSource.
type FTPOptions struct {
	Host       string        `yaml:"host" mapstructure:"host"`
	User       string        `yaml:"user" mapstructure:"user"`
	Password   string        `yaml:"password" mapstructure:"password"`
	RemoteDir  string        `yaml:"remote_dir" mapstructure:"remote_dir"`
	StagingDir string        `yaml:"staging_dir" mapstructure:"staging_dir"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// FTPSource stages scans from a scale house's FTP drop. Each call dials a
// fresh connection; the servers involved are small embedded boxes that
// drop idle sessions without warning.
type FTPSource struct {
	opts FTPOptions
}

// NewFTPSource creates an FTPSource with the given options.
func NewFTPSource(opts FTPOptions) *FTPSource {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	opts.Host = normalizeFTPHost(opts.Host)
	return &FTPSource{opts: opts}
}

// normalizeFTPHost appends the default FTP port when none is present.
func normalizeFTPHost(host string) string {
	if _, _, err := net.SplitHostPort(host); err != nil {
		return net.JoinHostPort(host, "21")
	}
	return host
}

func (s *FTPSource) dial(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.opts.Host, ftp.DialWithTimeout(s.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: ftp dial %s", s.opts.Host)
	}
	if err := conn.Login(s.opts.User, s.opts.Password); err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "fetcher: ftp login")
	}
	return conn, nil
}

// List returns the PDF files in the remote drop directory.
func (s *FTPSource) List(ctx context.Context) ([]string, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit() //nolint:errcheck

	entries, err := conn.List(s.opts.RemoteDir)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: ftp list %s", s.opts.RemoteDir)
	}

	var names []string
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		if !strings.EqualFold(path.Ext(e.Name), ".pdf") {
			continue
		}
		names = append(names, e.Name)
	}
	sort.Strings(names)

	zap.L().Debug("ftp drop listed",
		zap.String("host", s.opts.Host),
		zap.String("dir", s.opts.RemoteDir),
		zap.Int("files", len(names)))
	return names, nil
}

// Stage downloads the named file into the staging directory and returns
// the local path.
func (s *FTPSource) Stage(ctx context.Context, name string) (string, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Quit() //nolint:errcheck

	resp, err := conn.Retr(path.Join(s.opts.RemoteDir, name))
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: ftp retrieve %s", name)
	}
	defer resp.Close() //nolint:errcheck

	if err := os.MkdirAll(s.opts.StagingDir, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create staging dir")
	}
	local := filepath.Join(s.opts.StagingDir, filepath.Base(name))
	f, err := os.Create(local)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create staged file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp); err != nil {
		return "", eris.Wrapf(err, "fetcher: stage %s", name)
	}
	return local, nil
}
