// Package packager assembles a task's Slurm artifacts and declared
// logs/results paths into a single deflate-compressed zip archive.
package packager

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lcpu-club/ailabber/internal/model"
	"github.com/lcpu-club/ailabber/internal/slurm"
	"github.com/lcpu-club/ailabber/internal/submitter"
)

// RemoteFetcher streams a remote task's already-packaged results archive.
// internal/bridge.Bridge satisfies this; the local Packager never reaches
// into a remote filesystem directly.
type RemoteFetcher interface {
	Fetch(ctx context.Context, t *model.Task) (io.ReadCloser, error)
}

// Packager builds result archives for local/local-run tasks and delegates
// remote tasks to the Remote Server via RemoteFetcher.
type Packager struct {
	Remote RemoteFetcher
}

// New builds a Packager. remote may be nil if the deployment never submits
// to the remote target.
func New(remote RemoteFetcher) *Packager {
	return &Packager{Remote: remote}
}

// ArchiveName returns the suggested filename for taskID's results archive.
func ArchiveName(taskID string) string {
	return fmt.Sprintf("%s_results.zip", taskID)
}

// Build writes t's results archive to w. For a remote task this streams
// the Remote Server's own archive through verbatim; for a local/local-run
// task it assembles one directly from the local filesystem.
func (p *Packager) Build(ctx context.Context, t *model.Task, w io.Writer) error {
	if t.Target == model.TargetRemote {
		rc, err := p.Remote.Fetch(ctx, t)
		if err != nil {
			return err
		}
		defer rc.Close()
		_, err = io.Copy(w, rc)
		return err
	}
	return buildLocal(t, w)
}

func buildLocal(t *model.Task, w io.Writer) error {
	workdir := submitter.ResolveWorkdir(t.UploadRoot, t.Workdir)
	zw := zip.NewWriter(w)

	paths := slurm.ArtifactPaths(workdir, t.TaskID)
	addIfExists(zw, paths.Stdout, "slurm/"+filepath.Base(paths.Stdout))
	addIfExists(zw, paths.Stderr, "slurm/"+filepath.Base(paths.Stderr))
	addIfExists(zw, paths.Script, "slurm/"+filepath.Base(paths.Script))

	for _, declared := range t.QueuedPaths() {
		if err := addPath(zw, workdir, declared); err != nil {
			return err
		}
	}

	return zw.Close()
}

// addPath resolves declared (absolute, or relative to workdir) and adds it:
// a single entry if it is a file, every contained file (relative path
// preserved) if it is a directory. A missing path is skipped silently.
func addPath(zw *zip.Writer, workdir, declared string) error {
	abs := declared
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workdir, declared)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if !info.IsDir() {
		rel, err := filepath.Rel(workdir, abs)
		if err != nil {
			rel = filepath.Base(abs)
		}
		return writeZipFile(zw, abs, filepath.ToSlash(rel))
	}

	return filepath.Walk(abs, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(workdir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		return writeZipFile(zw, path, filepath.ToSlash(rel))
	})
}

// addIfExists adds src at archiveName if src exists, silently skipping it
// otherwise.
func addIfExists(zw *zip.Writer, src, archiveName string) {
	if _, err := os.Stat(src); err != nil {
		return
	}
	_ = writeZipFile(zw, src, archiveName)
}

func writeZipFile(zw *zip.Writer, src, archiveName string) error {
	f, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	header := &zip.FileHeader{Name: archiveName, Method: zip.Deflate}
	entry, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}
