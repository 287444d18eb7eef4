// Command gdrive-auth obtains the Drive refresh token the gdrive storage
// provider needs, through a loopback OAuth flow.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/logger"
	"framefarm/internal/pkg/util"
)

const authWait = 3 * time.Minute

func main() {
	log := logger.New(logger.Config{Level: "info", Format: "text", Output: os.Stderr, ServiceName: "gdrive-auth"})
	if err := run(context.Background()); err != nil {
		log.LogFatal("authorization failed", err)
	}
}

func run(ctx context.Context) error {
	clientID := util.Env("GDRIVE_CLIENT_ID", "")
	clientSecret := util.Env("GDRIVE_CLIENT_SECRET", "")
	if clientID == "" || clientSecret == "" {
		return errors.Config("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET must be set")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return errors.Wrap(err, "gdrive-auth.listen", "open loopback listener")
	}
	defer ln.Close()

	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		// Only files the farm creates itself.
		Scopes:      []string{drive.DriveFileScope},
		RedirectURL: redirectURL,
	}

	state := randomState()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code, err := callbackCode(r, state)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			errCh <- err
			return
		}
		fmt.Fprintln(w, "Authorized. You can close this window and return to the terminal.")
		codeCh <- code
	})

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	// Offline access with a forced consent screen yields a refresh token.
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("\nOpen this URL in your browser:\n\n%s\n\nWaiting for authorization on %s\n", authURL, redirectURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-time.After(authWait):
		return errors.Timeout("waiting for authorization")
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return errors.Wrap(err, "gdrive-auth.exchange", "exchange authorization code")
	}
	if strings.TrimSpace(tok.RefreshToken) == "" {
		return errors.Config("no refresh token returned; revoke the app at https://myaccount.google.com/permissions and run again")
	}

	if err := verify(ctx, conf, tok); err != nil {
		return err
	}

	fmt.Printf("\nGDRIVE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
	return nil
}

func callbackCode(r *http.Request, state string) (string, error) {
	q := r.URL.Query()
	if q.Get("state") != state {
		return "", errors.Validation("invalid state")
	}
	if e := q.Get("error"); e != "" {
		return "", errors.Validationf("auth error: %s", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.Validation("missing code")
	}
	return code, nil
}

// verify makes one Drive call with the new token.
func verify(ctx context.Context, conf *oauth2.Config, tok *oauth2.Token) error {
	svc, err := drive.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx, tok)))
	if err != nil {
		return errors.Wrap(err, "gdrive-auth.verify", "create drive service")
	}
	about, err := svc.About.Get().Fields("user(emailAddress)").Context(ctx).Do()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive-auth.verify", "drive rejected the new token")
	}
	if about.User != nil {
		fmt.Printf("\nAuthorized as %s\n", about.User.EmailAddress)
	}
	return nil
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
