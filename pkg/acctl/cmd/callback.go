package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

type callbackResult struct {
	code  string
	state string
	reply chan error
}

// authorize sends the user to authURL and hands the code and state that come
// back on redirectURI to complete.
func (rt *runtimeState) authorize(ctx context.Context, in io.Reader, redirectURI, authURL string, complete func(code, state string) error) error {
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect uri: %w", err)
	}
	if isLoopback(redirect) {
		return rt.awaitLoopbackCallback(ctx, redirect, authURL, complete)
	}
	return rt.awaitPastedRedirect(ctx, in, authURL, complete)
}

func isLoopback(u *url.URL) bool {
	if u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (rt *runtimeState) showAuthURL(authURL string) {
	_, _ = fmt.Fprintf(rt.Writer(), "Open the following URL in your browser:\n%s\n", authURL)
	if rt.noBrowser || rt.openBrowser == nil {
		return
	}
	if err := rt.openBrowser(authURL); err != nil {
		rt.Logger().Sugar().Debugw("Could not open browser", "error", err)
	}
}

func (rt *runtimeState) awaitLoopbackCallback(ctx context.Context, redirect *url.URL, authURL string, complete func(code, state string) error) error {
	if redirect.Port() == "" {
		return errors.New("loopback redirect uri needs an explicit port")
	}
	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("failed to start callback listener: %w", err)
	}
	defer func() {
		_ = listener.Close()
	}()

	path := redirect.Path
	if path == "" {
		path = "/"
	}
	resultCh := make(chan callbackResult)
	errCh := make(chan error, 1)

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != path {
				http.NotFound(w, r)
				return
			}
			code, state, err := callbackParams(r.URL.Query())
			if err != nil {
				select {
				case errCh <- err:
				default:
				}
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			result := callbackResult{code: code, state: state, reply: make(chan error, 1)}
			select {
			case resultCh <- result:
			case <-r.Context().Done():
				return
			}
			if err := <-result.reply; err != nil {
				http.Error(w, "Sign-in failed: "+err.Error(), http.StatusBadRequest)
				return
			}
			_, _ = fmt.Fprintln(w, "Authentication complete. You can close this window.")
		}),
	}

	go func() {
		_ = server.Serve(listener)
	}()
	defer func() {
		_ = server.Close()
	}()

	rt.showAuthURL(authURL)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	case result := <-resultCh:
		err := complete(result.code, result.state)
		result.reply <- err
		return err
	}
}

func (rt *runtimeState) awaitPastedRedirect(ctx context.Context, in io.Reader, authURL string, complete func(code, state string) error) error {
	rt.showAuthURL(authURL)
	_, _ = fmt.Fprintln(rt.Writer(), "After signing in, paste the URL you were redirected to:")

	lines := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				lines <- line
				return
			}
		}
		close(lines)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case line, ok := <-lines:
		if !ok {
			return errors.New("no redirect url entered")
		}
		u, err := url.Parse(line)
		if err != nil {
			return fmt.Errorf("invalid redirect url: %w", err)
		}
		code, state, err := callbackParams(u.Query())
		if err != nil {
			return err
		}
		return complete(code, state)
	}
}

func callbackParams(q url.Values) (code, state string, err error) {
	if e := q.Get("error"); e != "" {
		if desc := q.Get("error_description"); desc != "" {
			return "", "", fmt.Errorf("authorization denied: %s: %s", e, desc)
		}
		return "", "", fmt.Errorf("authorization denied: %s", e)
	}
	code = q.Get("code")
	if code == "" {
		return "", "", errors.New("missing code in callback")
	}
	state = q.Get("state")
	if state == "" {
		return "", "", errors.New("missing state in callback")
	}
	return code, state, nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
