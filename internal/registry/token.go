package registry

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// DefaultTokenLifetime is how long a shared access token is valid after it is issued
const DefaultTokenLifetime = time.Hour

// TokenSource issues shared access tokens for the service policy in a registry connection string
type TokenSource struct {
	hostName string
	keyName  string
	key      []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewTokenSource decodes the policy key of creds. A non-positive lifetime
// falls back to DefaultTokenLifetime.
func NewTokenSource(creds *Credentials, lifetime time.Duration) (*TokenSource, error) {
	key, err := base64.StdEncoding.DecodeString(creds.SharedAccessKey)
	if err != nil {
		return nil, fmt.Errorf("%w: SharedAccessKey is not base64", ErrInvalidConnectionString)
	}
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}

	return &TokenSource{
		hostName: creds.HostName,
		keyName:  creds.SharedAccessKeyName,
		key:      key,
		lifetime: lifetime,
		now:      time.Now,
	}, nil
}

// Token returns a token of the form
// "SharedAccessSignature sr=<host>&sig=<signature>&se=<expiry>&skn=<policy>"
func (t *TokenSource) Token() string {
	expiry := t.now().Add(t.lifetime).Unix()
	return signToken(t.hostName, t.keyName, t.key, expiry)
}

func signToken(hostName, keyName string, key []byte, expiry int64) string {
	resource := url.QueryEscape(hostName)
	se := strconv.FormatInt(expiry, 10)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(resource + "\n" + se))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	token := "SharedAccessSignature sr=" + resource + "&sig=" + url.QueryEscape(signature) + "&se=" + se
	if keyName != "" {
		token += "&skn=" + keyName
	}
	return token
}

// sharedAccessPolicy authorizes every request with a fresh token. It runs per
// retry so that a retried request never carries an expired token.
type sharedAccessPolicy struct {
	tokens *TokenSource
}

func (p *sharedAccessPolicy) Do(req *policy.Request) (*http.Response, error) {
	req.Raw().Header.Set("Authorization", p.tokens.Token())
	return req.Next()
}
