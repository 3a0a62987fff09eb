package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"

	"github.com/telekom/account-client/pkg/account"
)

func oauthConfig(cfg account.Config, scopes []string) oauth2.Config {
	if len(scopes) == 0 {
		scopes = cfg.Scopes
	}
	return oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURI,
		Scopes:      scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthorizationEndpoint(),
			TokenURL:  cfg.TokenEndpoint(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// ExchangeCode redeems an authorization code at the token endpoint and loads
// the profile of the signed-in user.
func (c *Client) ExchangeCode(ctx context.Context, req account.ExchangeRequest) (*account.ExchangeResult, error) {
	oauthCfg := oauthConfig(req.Config, req.Scopes)
	started := time.Now()
	token, err := oauthCfg.Exchange(c.oauthContext(ctx), req.Code, oauth2.SetAuthURLParam("code_verifier", req.CodeVerifier))
	if err != nil {
		observe("token", started, retrieveStatus(err))
		return nil, oauthError("token exchange", err)
	}
	observe("token", started, http.StatusOK)

	session := sessionFromToken(token)
	if len(session.Scopes) == 0 {
		session.Scopes = oauthCfg.Scopes
	}
	if req.WantsKeys && session.Keys == "" {
		c.log.Warnw("Keys were requested but the token response carried none")
	}

	profile := profileFromIDToken(session.IDToken)
	fetched, err := c.FetchProfile(ctx, req.Config, session.AccessToken)
	switch {
	case err == nil:
		if fetched.UID != "" {
			profile.UID = fetched.UID
		}
		if fetched.Email != "" {
			profile.Email = fetched.Email
		}
		profile.DisplayName = fetched.DisplayName
	case profile.UID != "" || errors.Is(err, account.ErrNotFound):
		c.log.Debugw("Continuing without profile", "error", err)
	default:
		return nil, err
	}
	return &account.ExchangeResult{Session: *session, Profile: profile}, nil
}

// RefreshSession trades the session's refresh token for a new access token.
func (c *Client) RefreshSession(ctx context.Context, cfg account.Config, session account.Session) (*account.Session, error) {
	if session.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", account.ErrNotAuthenticated)
	}
	oauthCfg := oauthConfig(cfg, session.Scopes)
	// An empty access token forces the source to refresh.
	src := oauthCfg.TokenSource(c.oauthContext(ctx), &oauth2.Token{
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
	})
	started := time.Now()
	refreshed, err := src.Token()
	if err != nil {
		observe("token", started, retrieveStatus(err))
		return nil, oauthError("token refresh", err)
	}
	observe("token", started, http.StatusOK)
	return sessionFromToken(refreshed), nil
}

func sessionFromToken(token *oauth2.Token) *account.Session {
	session := &account.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		session.IDToken = idToken
	}
	if keys, ok := token.Extra("keys_jwe").(string); ok {
		session.Keys = keys
	}
	if scope, ok := token.Extra("scope").(string); ok {
		session.Scopes = strings.Fields(scope)
	}
	return session
}

// profileFromIDToken reads identity claims without verifying the token. The
// token came straight from the token endpoint over TLS.
func profileFromIDToken(idToken string) account.Profile {
	if idToken == "" {
		return account.Profile{}
	}
	parser := jwt.Parser{}
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return account.Profile{}
	}
	var profile account.Profile
	if sub, ok := claims["sub"].(string); ok {
		profile.UID = sub
	}
	if email, ok := claims["email"].(string); ok {
		profile.Email = email
	}
	return profile
}

func retrieveStatus(err error) int {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode
	}
	return 0
}

func oauthError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		msg := re.ErrorCode
		if re.ErrorDescription != "" {
			msg = strings.TrimSpace(msg + ": " + re.ErrorDescription)
		}
		if msg == "" {
			msg = strings.TrimSpace(string(re.Body))
		}
		if msg == "" {
			msg = re.Response.Status
		}
		return fmt.Errorf("%w: %s: %w", account.ErrTransport, op, &HTTPError{StatusCode: re.Response.StatusCode, Message: msg})
	}
	return fmt.Errorf("%w: %s: %w", account.ErrTransport, op, err)
}
