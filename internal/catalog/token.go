package catalog

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials はカタログAPIのOAuthクライアント資格情報。
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// NewTokenSource はクライアントクレデンシャルフローでアクセストークンを取得するTokenSourceを返す。
// 返されるTokenSourceは有効期限までトークンを再利用し、期限切れ時の再取得は内部のロックで1回にまとめられる。
// httpClientを指定した場合はトークン取得にそのクライアントを使う。
func NewTokenSource(ctx context.Context, httpClient *http.Client, creds Credentials) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
		Scopes:       creds.Scopes,
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return cfg.TokenSource(ctx)
}
