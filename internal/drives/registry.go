package drives

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/dabbu/dabbu-go/internal/provider"
	"github.com/dabbu/dabbu-go/internal/store"
)

// Store key layout.
const (
	keyCurrentDrive = "current_drive"
	keySessionCreds = "session.credentials"
	keyDrives       = "drives"

	keyProvider     = "provider"
	keyPath         = "path"
	keyFields       = "fields"
	keyAuth         = "auth"
	keyAuthMeta     = "authMeta"
	keyAccessToken  = "accessToken"
	keyRefreshToken = "refreshToken"
	keyExpiresAt    = "expiresAt"
	keyClientID     = "clientId"
	keyClientSecret = "clientSecret"
	keyRedirectURI  = "redirectUri"
)

// rootPath is the working folder of a newly created drive.
const rootPath = "/"

// validName restricts drive names so they are safe as store key segments
// and unambiguous before the ':' drive separator.
var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// UnknownDriveError is returned when a name does not refer to a drive with a
// registered provider.
type UnknownDriveError struct {
	Name string
}

func (e *UnknownDriveError) Error() string {
	return fmt.Sprintf("unknown drive %q", e.Name)
}

// Sentinel errors.
var (
	ErrNoCurrentDrive = errors.New("drives: no drive selected, create one with 'dabbu drive add'")
	ErrDriveExists    = errors.New("drives: drive already exists")
)

// Registry reads and writes drive state through a store.Store. TokenManager
// and the authorization flow are the only writers of credential keys.
type Registry struct {
	store store.Store
}

// NewRegistry wraps s.
func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s}
}

func driveKey(name string, parts ...string) string {
	key := keyDrives + "." + name
	for _, p := range parts {
		key += "." + p
	}

	return key
}

// ValidateName checks that name can be used as a drive name.
func ValidateName(name string) error {
	return validation.Validate(name,
		validation.Required,
		validation.Length(1, 64),
		validation.Match(validName).Error("must contain only letters, digits, '-' and '_'"),
	)
}

// Names returns all drive names, sorted.
func (r *Registry) Names() []string {
	m := store.GetMap(r.store, keyDrives)

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Create registers a new drive with the given provider and a root working
// folder. The provider of an existing drive never changes, so creating a
// drive that already exists fails with ErrDriveExists.
func (r *Registry) Create(name string, id provider.ID) error {
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("drive name %q: %w", name, err)
	}

	if r.HasProvider(name) {
		return fmt.Errorf("%w: %s", ErrDriveExists, name)
	}

	if err := r.store.Set(driveKey(name, keyProvider), string(id)); err != nil {
		return err
	}

	return r.store.Set(driveKey(name, keyPath), rootPath)
}

// Remove deletes a drive and all of its credentials. If it was the current
// drive, no drive is selected afterwards.
func (r *Registry) Remove(name string) error {
	if !r.HasProvider(name) {
		return &UnknownDriveError{Name: name}
	}

	if err := r.store.Delete(driveKey(name)); err != nil {
		return err
	}

	if r.Current() == name {
		return r.store.Delete(keyCurrentDrive)
	}

	return nil
}

// Get returns a snapshot of the named drive.
func (r *Registry) Get(name string) (Drive, error) {
	id := store.GetString(r.store, driveKey(name, keyProvider))
	if id == "" {
		return Drive{}, &UnknownDriveError{Name: name}
	}

	d := Drive{
		Name:     name,
		Provider: provider.ID(id),
		Path:     store.GetString(r.store, driveKey(name, keyPath)),
		Fields:   make(map[string]string),
		Auth: Auth{
			AccessToken:  store.GetString(r.store, driveKey(name, keyAuth, keyAccessToken)),
			RefreshToken: store.GetString(r.store, driveKey(name, keyAuth, keyRefreshToken)),
			ExpiresAt:    store.GetInt64(r.store, driveKey(name, keyAuth, keyExpiresAt)),
		},
		AuthMeta: AuthMeta{
			ClientID:     store.GetString(r.store, driveKey(name, keyAuthMeta, keyClientID)),
			ClientSecret: store.GetString(r.store, driveKey(name, keyAuthMeta, keyClientSecret)),
			RedirectURI:  store.GetString(r.store, driveKey(name, keyAuthMeta, keyRedirectURI)),
		},
	}

	if d.Path == "" {
		d.Path = rootPath
	}

	for k, v := range store.GetMap(r.store, driveKey(name, keyFields)) {
		if s, ok := v.(string); ok {
			d.Fields[k] = s
		}
	}

	return d, nil
}

// Set writes a drive-relative key such as "fields.basePath" or
// "authMeta.clientId". It is used to store user-supplied provider fields.
func (r *Registry) Set(name, key, value string) error {
	if !r.HasProvider(name) {
		return &UnknownDriveError{Name: name}
	}

	return r.store.Set(driveKey(name, key), value)
}

// SetPath stores the drive's current working folder. path must already be
// normalized.
func (r *Registry) SetPath(name, path string) error {
	if !r.HasProvider(name) {
		return &UnknownDriveError{Name: name}
	}

	return r.store.Set(driveKey(name, keyPath), path)
}

// SetAuth stores the drive's OAuth2 credentials. Fields are written one by
// one; a failure part way leaves the earlier fields written.
func (r *Registry) SetAuth(name string, a Auth) error {
	if !r.HasProvider(name) {
		return &UnknownDriveError{Name: name}
	}

	if err := r.store.Set(driveKey(name, keyAuth, keyAccessToken), a.AccessToken); err != nil {
		return err
	}

	if err := r.store.Set(driveKey(name, keyAuth, keyRefreshToken), a.RefreshToken); err != nil {
		return err
	}

	return r.store.Set(driveKey(name, keyAuth, keyExpiresAt), a.ExpiresAt)
}

// Current returns the selected drive name, or "" if none.
func (r *Registry) Current() string {
	return store.GetString(r.store, keyCurrentDrive)
}

// SetCurrent selects the drive used for paths without a drive prefix.
func (r *Registry) SetCurrent(name string) error {
	if !r.HasProvider(name) {
		return &UnknownDriveError{Name: name}
	}

	return r.store.Set(keyCurrentDrive, name)
}

// CurrentDrive implements drivepath.Lookup.
func (r *Registry) CurrentDrive() string {
	return r.Current()
}

// HasProvider reports whether name is a drive with a registered provider.
func (r *Registry) HasProvider(name string) bool {
	return store.GetString(r.store, driveKey(name, keyProvider)) != ""
}

// CurrentPath returns the drive's working folder, "/" if unset.
func (r *Registry) CurrentPath(name string) string {
	p := store.GetString(r.store, driveKey(name, keyPath))
	if p == "" {
		return rootPath
	}

	return p
}

// SessionCredentials returns the identifier this CLI installation presents to
// the Files API, generating and persisting one on first use.
func (r *Registry) SessionCredentials() (string, error) {
	if creds := store.GetString(r.store, keySessionCreds); creds != "" {
		return creds, nil
	}

	creds := uuid.NewString()
	if err := r.store.Set(keySessionCreds, creds); err != nil {
		return "", fmt.Errorf("saving session credentials: %w", err)
	}

	return creds, nil
}
