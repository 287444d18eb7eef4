package gdrive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"framefarm/internal/pkg/errors"
	"framefarm/internal/ports"
)

// Client implements ports.StorageProvider backed by Google Drive.
// Object keys are stored verbatim as Drive file names inside one folder;
// reads resolve the name to a fileId first.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	const op = "gdrive.put"
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.ValidationField("object_key", "object_key is required").WithOp(op)
	}

	file := &drive.File{Name: in.ObjectKey}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).SupportsAllDrives(true)
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, wrapAPI(err, op, in.ObjectKey)
	}

	size := in.Size
	if created.Size > 0 {
		size = created.Size
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	id, err := c.resolve(ctx, objectKey)
	if err != nil {
		return nil, "", 0, err
	}

	resp, err := c.srv.Files.Get(id).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, "", 0, wrapAPI(err, "gdrive.get", objectKey)
	}

	contentType = resp.Header.Get("Content-Type")
	size = resp.ContentLength
	return resp.Body, contentType, size, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	id, err := c.resolve(ctx, objectKey)
	if err != nil {
		return err
	}
	if err := c.srv.Files.Delete(id).
		SupportsAllDrives(true).
		Context(ctx).
		Do(); err != nil {
		return wrapAPI(err, "gdrive.delete", objectKey)
	}
	return nil
}

// ListObjects pages through "name contains" matches and keeps true prefix
// matches; Drive has no prefix operator.
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	q := c.query(fmt.Sprintf("name contains '%s'", escape(prefix)))
	if prefix == "" {
		q = c.query("")
	}

	var out []ports.ObjectInfo
	err := c.srv.Files.List().
		Q(q).
		Fields("nextPageToken, files(id, name, size, modifiedTime)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		PageSize(1000).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				if !strings.HasPrefix(f.Name, prefix) {
					continue
				}
				mod, _ := time.Parse(time.RFC3339, f.ModifiedTime)
				out = append(out, ports.ObjectInfo{Key: f.Name, Size: f.Size, ModifiedAt: mod})
			}
			return nil
		})
	if err != nil {
		return nil, wrapAPI(err, "gdrive.list", prefix)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Commit is a no-op: Drive uploads are visible once Create returns.
func (c *Client) Commit(ctx context.Context) error {
	return nil
}

func (c *Client) resolve(ctx context.Context, objectKey string) (string, error) {
	res, err := c.srv.Files.List().
		Q(c.query(fmt.Sprintf("name = '%s'", escape(objectKey)))).
		Fields("files(id)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapAPI(err, "gdrive.resolve", objectKey)
	}
	if len(res.Files) == 0 {
		return "", errors.NotFound("object", objectKey)
	}
	return res.Files[0].Id, nil
}

func (c *Client) query(cond string) string {
	parts := []string{"trashed = false"}
	if c.folderID != "" {
		parts = append(parts, fmt.Sprintf("'%s' in parents", escape(c.folderID)))
	}
	if cond != "" {
		parts = append(parts, cond)
	}
	return strings.Join(parts, " and ")
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func wrapAPI(err error, op, key string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 404:
			return errors.NotFound("object", key)
		case 429, 500, 502, 503:
			return errors.WrapWithCode(err, errors.CodeUnavailable, op, "drive unavailable").WithField("key", key)
		}
	}
	return errors.Wrapf(err, op, "drive request for %s", key)
}
