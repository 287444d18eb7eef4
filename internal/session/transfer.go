package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/logger"
	"framefarm/internal/ports"
)

// ProjectExt is the only accepted project file extension.
const ProjectExt = ".blend"

// ValidateProjectFile checks that p names an existing regular .blend file.
func ValidateProjectFile(p string) error {
	if !strings.EqualFold(filepath.Ext(p), ProjectExt) {
		return errors.ValidationField("blend_file_path", fmt.Sprintf("project file must be a %s file: %s", ProjectExt, p))
	}
	st, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.ValidationField("blend_file_path", fmt.Sprintf("project file does not exist: %s", p))
		}
		return errors.Wrapf(err, "session.validate", "stat %s", p)
	}
	if !st.Mode().IsRegular() {
		return errors.ValidationField("blend_file_path", fmt.Sprintf("project file is not a regular file: %s", p))
	}
	return nil
}

// Uploader pushes a run's inputs to storage before any chunk is dispatched.
type Uploader struct {
	store ports.StorageProvider
	sess  Session
	log   *logger.Logger
}

func NewUploader(store ports.StorageProvider, sess Session, log *logger.Logger) *Uploader {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Uploader{store: store, sess: sess, log: log.WithComponent("uploader").WithSessionID(sess.ID)}
}

// UploadProject validates localPath, stores it under the session's project
// key and commits so that render nodes can read it.
func (u *Uploader) UploadProject(ctx context.Context, localPath string) (ports.PutObjectOutput, error) {
	const op = "session.upload"

	if err := ValidateProjectFile(localPath); err != nil {
		return ports.PutObjectOutput{}, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrapf(err, op, "open %s", localPath)
	}
	defer f.Close()

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	out, err := u.store.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   u.sess.ProjectKey(),
		ContentType: "application/octet-stream",
		Reader:      f,
		Size:        size,
	})
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "store project file")
	}
	if err := u.store.Commit(ctx); err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "commit project file")
	}

	u.log.Info("project uploaded", "key", out.ObjectKey, "bytes", out.Size, "provider", u.store.Provider())
	return out, nil
}

// Downloader copies a run's frames out of storage.
type Downloader struct {
	store ports.StorageProvider
	sess  Session
	log   *logger.Logger
}

func NewDownloader(store ports.StorageProvider, sess Session, log *logger.Logger) *Downloader {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Downloader{store: store, sess: sess, log: log.WithComponent("downloader").WithSessionID(sess.ID)}
}

// DownloadFrames copies every object under the frames prefix into dst and
// returns the written paths in key order.
func (d *Downloader) DownloadFrames(ctx context.Context, dst string) ([]string, error) {
	const op = "session.download"

	objs, err := d.store.ListObjects(ctx, d.sess.FramesPrefix())
	if err != nil {
		return nil, errors.Wrap(err, op, "list frames")
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, errors.Wrapf(err, op, "create %s", dst)
	}

	written := make([]string, 0, len(objs))
	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return written, errors.WrapWithCode(err, errors.CodeCanceled, op, "download interrupted")
		}
		p := filepath.Join(dst, path.Base(o.Key))
		if err := d.copyObject(ctx, o.Key, p); err != nil {
			return written, err
		}
		written = append(written, p)
	}

	d.log.Info("frames downloaded", "frames", len(written), "dest", dst)
	return written, nil
}

func (d *Downloader) copyObject(ctx context.Context, key, p string) error {
	const op = "session.download"

	rc, _, _, err := d.store.GetObject(ctx, key)
	if err != nil {
		return errors.Wrapf(err, op, "read %s", key)
	}
	defer rc.Close()

	f, err := os.Create(p)
	if err != nil {
		return errors.Wrapf(err, op, "create %s", p)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return errors.Wrapf(err, op, "write %s", p)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, op, "close %s", p)
	}
	return nil
}

// DownloadCommand is the hint printed after a run for fetching its frames.
func DownloadCommand(s Session, dst string) string {
	if dst == "" {
		dst = "."
	}
	return fmt.Sprintf("framefarm download %s --dest %s", s.ID, dst)
}
