// Package storage picks the object store a framefarm process talks to.
package storage

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"framefarm/internal/adapters/storage/gdrive"
	"framefarm/internal/adapters/storage/localfs"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/util"
	"framefarm/internal/ports"
)

const (
	ProviderLocalFS = "localfs"
	ProviderGDrive  = "gdrive"
)

// Config selects and configures a storage provider.
type Config struct {
	Provider  string
	LocalRoot string
	GDrive    GDriveConfig
}

// GDriveConfig holds the OAuth client and refresh token obtained with
// cmd/gdrive-auth. An empty FolderID stores objects in the drive root.
type GDriveConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	FolderID     string
}

// ConfigFromEnv reads STORAGE_PROVIDER (default localfs), STORAGE_LOCAL_ROOT
// and the GDRIVE_* variables.
func ConfigFromEnv() Config {
	env := func(k string) string { return util.Env(k, "") }
	return Config{
		Provider:  util.Env("STORAGE_PROVIDER", ProviderLocalFS),
		LocalRoot: env("STORAGE_LOCAL_ROOT"),
		GDrive: GDriveConfig{
			ClientID:     env("GDRIVE_CLIENT_ID"),
			ClientSecret: env("GDRIVE_CLIENT_SECRET"),
			RefreshToken: env("GDRIVE_REFRESH_TOKEN"),
			FolderID:     env("GDRIVE_FOLDER_ID"),
		},
	}
}

// Validate reports every missing setting of the selected provider in one
// config error.
func (c Config) Validate() error {
	var missing []string
	need := func(key, v string) {
		if v == "" {
			missing = append(missing, key)
		}
	}

	switch strings.TrimSpace(c.Provider) {
	case ProviderLocalFS:
		need("STORAGE_LOCAL_ROOT", c.LocalRoot)
	case ProviderGDrive:
		need("GDRIVE_CLIENT_ID", c.GDrive.ClientID)
		need("GDRIVE_CLIENT_SECRET", c.GDrive.ClientSecret)
		need("GDRIVE_REFRESH_TOKEN", c.GDrive.RefreshToken)
	default:
		return errors.Configf("unknown storage provider %q: must be %s or %s", c.Provider, ProviderLocalFS, ProviderGDrive).
			WithField("key", "STORAGE_PROVIDER")
	}

	if len(missing) > 0 {
		return errors.Configf("%s storage is missing %s", c.Provider, strings.Join(missing, ", ")).
			WithField("missing", missing)
	}
	return nil
}

// New builds the provider described by cfg.
func New(ctx context.Context, cfg Config) (ports.StorageProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Provider) == ProviderLocalFS {
		return localfs.New(cfg.LocalRoot), nil
	}

	conf := &oauth2.Config{
		ClientID:     cfg.GDrive.ClientID,
		ClientSecret: cfg.GDrive.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
	// The token source refreshes the access token on first use.
	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GDrive.RefreshToken})

	srv, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "storage.gdrive", "create drive service")
	}
	return gdrive.NewClient(srv, cfg.GDrive.FolderID), nil
}

// NewProvider builds the provider configured in the environment.
func NewProvider() (ports.StorageProvider, error) {
	return New(context.Background(), ConfigFromEnv())
}
