// Package drives is the typed view of persisted drive state. A drive is a
// user-named binding to one provider, a current working folder, provider
// fields and, for OAuth2 providers, credentials. The state itself lives in a
// store.Store; Registry owns the key layout.
package drives

import (
	"strconv"
	"strings"
	"time"

	"github.com/dabbu/dabbu-go/internal/provider"
)

// Kind distinguishes files from folders in listings.
type Kind string

// File record kinds.
const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// FileRecord describes one file or folder, either as returned by the Files
// API or synthesized from local disk. Records are never persisted.
type FileRecord struct {
	Name       string    `json:"name"`
	Kind       Kind      `json:"kind"`
	Path       string    `json:"path"`
	MimeType   string    `json:"mimeType"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"createdAtTime"`
	ModifiedAt time.Time `json:"lastModifiedTime"`
	ContentURI string    `json:"contentUri"` // may embed credentials; never log
}

// IsFolder reports whether the record is a folder.
func (f *FileRecord) IsFolder() bool {
	return f.Kind == KindFolder
}

// Auth is the OAuth2 credential state of a drive. AccessToken includes the
// token type ("Bearer abc...") so it can be sent as an Authorization value.
type Auth struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64 // epoch milliseconds; 0 = unknown
}

// Expired reports whether the access token must be refreshed. A missing
// expiry counts as expired.
func (a Auth) Expired(now time.Time) bool {
	return a.ExpiresAt == 0 || now.UnixMilli() >= a.ExpiresAt
}

// AuthMeta is the OAuth2 client registration used by a drive.
type AuthMeta struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Drive is a snapshot of one drive's state.
type Drive struct {
	Name     string
	Provider provider.ID
	Path     string
	Fields   map[string]string
	Auth     Auth
	AuthMeta AuthMeta
}

// Value resolves a drive-relative key such as "auth.accessToken" or
// "fields.basePath", as used by provider.Field.From.
func (d *Drive) Value(key string) string {
	section, name, _ := strings.Cut(key, ".")

	switch section {
	case "path":
		return d.Path
	case "provider":
		return string(d.Provider)
	case "fields":
		return d.Fields[name]
	case "auth":
		switch name {
		case keyAccessToken:
			return d.Auth.AccessToken
		case keyRefreshToken:
			return d.Auth.RefreshToken
		case keyExpiresAt:
			return strconv.FormatInt(d.Auth.ExpiresAt, 10)
		}
	case "authMeta":
		switch name {
		case keyClientID:
			return d.AuthMeta.ClientID
		case keyClientSecret:
			return d.AuthMeta.ClientSecret
		case keyRedirectURI:
			return d.AuthMeta.RedirectURI
		}
	}

	return ""
}
