package drivepath

import (
	"errors"
	"fmt"

	"github.com/dabbu/dabbu-go/internal/drives"
)

// ErrNoFileName is returned by ResolveFile when the path resolves to the root
// folder and so names no file.
var ErrNoFileName = errors.New("path does not name a file")

// Lookup exposes the drive state the resolver needs. Satisfied by
// *drives.Registry.
type Lookup interface {
	CurrentDrive() string
	HasProvider(name string) bool
	CurrentPath(name string) string
}

// Address is a resolved (drive, folder, file) triple. File is empty for
// folder addresses.
type Address struct {
	Drive  string
	Folder string
	File   string
}

// Path returns the full normalized path of the address.
func (a Address) Path() string {
	if a.File == "" {
		return a.Folder
	}

	return Join(a.Folder, a.File)
}

func (a Address) String() string {
	return a.Drive + ":" + a.Path()
}

// Resolver turns raw user paths into addresses.
type Resolver struct {
	lookup Lookup
}

// NewResolver creates a Resolver over the given drive state.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// ResolveFolder resolves raw to a drive and normalized folder path. An empty
// raw path means the current folder of the drive.
func (r *Resolver) ResolveFolder(raw string) (Address, error) {
	drive, p, err := r.split(raw)
	if err != nil {
		return Address{}, err
	}

	return Address{
		Drive:  drive,
		Folder: Normalize(r.lookup.CurrentPath(drive), p),
	}, nil
}

// ResolveFile resolves raw to a drive, folder and file name. The last
// segment of the normalized path is the file name. Callers decide whether
// raw denotes a folder (IsFolderPath) before calling ResolveFile.
func (r *Resolver) ResolveFile(raw string) (Address, error) {
	addr, err := r.ResolveFolder(raw)
	if err != nil {
		return Address{}, err
	}

	segs := Split(addr.Folder)
	if len(segs) == 0 {
		return Address{}, fmt.Errorf("%s: %w", raw, ErrNoFileName)
	}

	addr.File = segs[len(segs)-1]
	addr.Folder = Join(segs[:len(segs)-1]...)

	return addr, nil
}

// split separates the drive prefix from raw and validates the drive.
func (r *Resolver) split(raw string) (string, string, error) {
	drive, p, found := SplitDrive(raw)
	if !found {
		drive, p = "", raw
	}

	if drive == "" {
		drive = r.lookup.CurrentDrive()
		if drive == "" {
			return "", "", drives.ErrNoCurrentDrive
		}
	}

	if !r.lookup.HasProvider(drive) {
		return "", "", &drives.UnknownDriveError{Name: drive}
	}

	if p == "" {
		p = current
	}

	return drive, p, nil
}
