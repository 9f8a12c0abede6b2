// Package sysio backs domain.IOnodeIface with afero, the way the teacher's
// sysio package backs its emulated procfs/sysfs nodes — so every control
// file and kernel sysfs node this daemon touches goes through one seam that
// production code points at afero.NewOsFs() and tests point at
// afero.NewMemMapFs().
package sysio

import (
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/Seyud/FreePPS/domain"
)

type ioFileService struct {
	fsType IOServiceType
	appFs  afero.Fs
}

// IOServiceType re-exports domain.IOServiceType so callers that only import
// sysio (the common case) don't also need the domain import.
type IOServiceType = domain.IOServiceType

const (
	IOOsFileService  = domain.IOOsFileService
	IOMemFileService = domain.IOMemFileService
)

// NewIOService builds an IOServiceIface. IOOsFileService is the production
// path; IOMemFileService backs unit tests with afero.NewMemMapFs().
func NewIOService(t IOServiceType) domain.IOServiceIface {
	svc := &ioFileService{fsType: t}
	if t == IOMemFileService {
		svc.appFs = afero.NewMemMapFs()
	} else {
		svc.appFs = afero.NewOsFs()
	}
	return svc
}

func (s *ioFileService) NewIOnode(path string) domain.IOnodeIface {
	return &ioNodeFile{path: path, fs: s.appFs}
}

func (s *ioFileService) GetServiceType() domain.IOServiceType {
	return s.fsType
}

// AppFs exposes the backing afero.Fs of an IOServiceIface built by this
// package, for tests that want to seed files directly (mirrors the teacher's
// package-level sysio.AppFs convenience used throughout
// handler/implementations/*_test.go).
func AppFs(svc domain.IOServiceIface) afero.Fs {
	if s, ok := svc.(*ioFileService); ok {
		return s.appFs
	}
	return nil
}

type ioNodeFile struct {
	path string
	fs   afero.Fs
}

func (n *ioNodeFile) Path() string { return n.path }

func (n *ioNodeFile) Exists() bool {
	_, err := n.fs.Stat(n.path)
	return err == nil
}

func (n *ioNodeFile) ReadFile() (string, error) {
	content, err := afero.ReadFile(n.fs, n.path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(content)), nil
}

func (n *ioNodeFile) WriteFile(content string) error {
	return afero.WriteFile(n.fs, n.path, []byte(content), os.FileMode(0644))
}

func (n *ioNodeFile) Remove() error {
	return n.fs.Remove(n.path)
}
