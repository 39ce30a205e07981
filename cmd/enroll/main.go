package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"time"

	"gatewaycred/internal/credential"
	"gatewaycred/internal/oauth"

	"github.com/google/uuid"
)

// enroll runs a one-shot interactive PKCE OAuth flow and writes the
// resulting credential into the credentials directory the server reads
// from, so a new credential can be added to the pool without a restart
// (the server's fsnotify watch on that directory picks it up).
func main() {
	clientID := flag.String("client-id", os.Getenv("GATEWAY_OAUTH_CLIENT_ID"), "OAuth client id")
	clientSecret := flag.String("client-secret", os.Getenv("GATEWAY_OAUTH_CLIENT_SECRET"), "OAuth client secret")
	redirectURI := flag.String("redirect-uri", oauth.DefaultRedirectURI, "OAuth redirect URI (must match a local listener)")
	project := flag.String("project", "", "cloud project id to associate with the new credential")
	credentialsDir := flag.String("credentials-dir", "./credentials", "directory the gateway reads credentials from")
	openBrowser := flag.Bool("open-browser", true, "open the authorization URL in the default browser")
	flag.Parse()

	if *clientID == "" || *clientSecret == "" {
		fmt.Fprintln(os.Stderr, "missing OAuth client credentials: pass -client-id/-client-secret or set GATEWAY_OAUTH_CLIENT_ID/SECRET")
		os.Exit(2)
	}

	mgr := oauth.NewManager(*clientID, *clientSecret, *redirectURI)

	authURL, state, err := mgr.StartAuthFlow(*project)
	if err != nil {
		stdlog.Fatalf("start auth flow: %v", err)
	}

	fmt.Println("Open this URL to authorize the new credential:")
	fmt.Println(authURL)
	if *openBrowser {
		openInBrowser(authURL)
	}

	code, err := waitForCallback(*redirectURI, state)
	if err != nil {
		stdlog.Fatalf("await callback: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	creds, err := mgr.HandleCallback(ctx, code, state)
	if err != nil {
		stdlog.Fatalf("exchange code: %v", err)
	}

	id := uuid.New().String()
	rec := &credential.Credential{
		ID:           id,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ProjectID:    firstNonEmpty(creds.ProjectID, *project),
		ClientID:     *clientID,
		ClientSecret: *clientSecret,
	}

	src := &credential.FileSource{Dir: *credentialsDir}
	if err := src.Save(rec); err != nil {
		stdlog.Fatalf("save credential: %v", err)
	}

	fmt.Printf("enrolled credential %s under %s\n", id, *credentialsDir)
}

// waitForCallback runs a short-lived local HTTP server implementing the
// redirect URI and blocks until the authorization code arrives or five
// minutes pass.
func waitForCallback(redirectURI, expectedState string) (string, error) {
	addr, path, err := listenAddrFromRedirectURI(redirectURI)
	if err != nil {
		return "", err
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			errCh <- fmt.Errorf("authorization denied: %s", errMsg)
			fmt.Fprintln(w, "Authorization failed; you can close this tab.")
			return
		}
		if got := r.URL.Query().Get("state"); got != expectedState {
			errCh <- fmt.Errorf("state mismatch: expected %s, got %s", expectedState, got)
			fmt.Fprintln(w, "State mismatch; you can close this tab.")
			return
		}
		codeCh <- r.URL.Query().Get("code")
		fmt.Fprintln(w, "Authorization received; you can close this tab.")
	})

	server := &http.Server{Addr: addr, Handler: mux}
	listenErrCh := make(chan error, 1)
	go func() {
		listenErrCh <- server.ListenAndServe()
	}()

	select {
	case code := <-codeCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return code, nil
	case err := <-errCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return "", err
	case err := <-listenErrCh:
		if err != nil && err != http.ErrServerClosed {
			return "", err
		}
		return "", fmt.Errorf("local callback server stopped unexpectedly")
	case <-time.After(5 * time.Minute):
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return "", fmt.Errorf("timed out waiting for authorization callback")
	}
}

func listenAddrFromRedirectURI(redirectURI string) (addr, path string, err error) {
	u, parseErr := url.Parse(redirectURI)
	if parseErr != nil {
		return "", "", parseErr
	}
	host := u.Host
	if host == "" {
		return "", "", fmt.Errorf("redirect URI %q has no host to listen on", redirectURI)
	}
	return host, u.Path, nil
}

func openInBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
