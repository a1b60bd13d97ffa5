package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Skyrin/go-migrate/e"
)

const (
	ECode000201 = e.Code0002 + "01"
	ECode000202 = e.Code0002 + "02"
	ECode000203 = e.Code0002 + "03"
	ECode000204 = e.Code0002 + "04"
	ECode000205 = e.Code0002 + "05"
	ECode000206 = e.Code0002 + "06"
	ECode000207 = e.Code0002 + "07"
	ECode000208 = e.Code0002 + "08"
	ECode000209 = e.Code0002 + "09"
	ECode00020A = e.Code0002 + "0A"

	// MigrationFileExt extension of migration files, matched case insensitively
	MigrationFileExt = ".sql"
	// DefaultIDSeparator separator used by the prefix identifier policy
	DefaultIDSeparator = "_"
)

// IDKind how a file's identifier is derived from its name
type IDKind string

const (
	// IDFullFilename the identifier is the full file name, e.g. 001_init.sql
	IDFullFilename IDKind = "filename"
	// IDPrefixBeforeSeparator the identifier is the part of the name before the
	// first separator, e.g. 001 for 001_init.sql
	IDPrefixBeforeSeparator IDKind = "prefix"
)

// IDPolicy controls migration identifiers
type IDPolicy struct {
	Kind      IDKind
	Separator string
}

// ParseIDKind converts a configuration value to an IDKind
func ParseIDKind(s string) (k IDKind, err error) {
	switch IDKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", IDFullFilename:
		return IDFullFilename, nil
	case IDPrefixBeforeSeparator:
		return IDPrefixBeforeSeparator, nil
	}

	return "", e.NK(e.KindConfig, ECode000201, e.MsgConfigIDPolicyInvalid)
}

// File a discovered migration file
type File struct {
	ID   string // Identifier recorded in the ledger
	Name string // Base file name
	Path string // Path relative to the migration directory
}

// List the migration files of a single directory
type List struct {
	dir    string
	fsys   fs.FS
	policy IDPolicy
}

// NewList initialize a new list reading from fsys. The dir is only used for
// messages.
func NewList(dir string, fsys fs.FS, policy IDPolicy) (l *List) {
	if policy.Kind == "" {
		policy.Kind = IDFullFilename
	}
	if policy.Separator == "" {
		policy.Separator = DefaultIDSeparator
	}

	return &List{
		dir:    dir,
		fsys:   fsys,
		policy: policy,
	}
}

// NewDirList initialize a new list reading the directory from disk
func NewDirList(dir string, policy IDPolicy) (l *List) {
	return NewList(dir, os.DirFS(dir), policy)
}

// FileID derives the identifier of the file name using the list's policy
func (l *List) FileID(name string) (id string, err error) {
	if l.policy.Kind == IDFullFilename {
		return name, nil
	}

	stem := strings.TrimSuffix(name, path.Ext(name))
	idx := strings.Index(stem, l.policy.Separator)
	if idx <= 0 {
		return "", e.NK(e.KindFormat, ECode000202,
			fmt.Sprintf("%s: %s", e.MsgMigrationFileNameInvalid, name))
	}

	return stem[:idx], nil
}

// Discover returns the migration files of the directory sorted by identifier.
// Sub directories and files without the .sql extension are ignored.
func (l *List) Discover() (fList []*File, err error) {
	deList, err := l.entries()
	if err != nil {
		return nil, e.W(err, ECode000209)
	}

	fList = make([]*File, 0, len(deList))
	seen := make(map[string]string, len(deList))

	for _, de := range deList {
		id, err := l.FileID(de.Name())
		if err != nil {
			return nil, e.W(err, ECode000205)
		}

		if other, ok := seen[id]; ok {
			return nil, e.NK(e.KindFormat, ECode000206,
				fmt.Sprintf("%s: %s (%s, %s)", e.MsgMigrationFileNameDuplicate,
					id, other, de.Name()))
		}
		seen[id] = de.Name()

		fList = append(fList, newFile(id, de.Name()))
	}

	sort.Slice(fList, func(i, j int) bool {
		return fList[i].ID < fList[j].ID
	})

	return fList, nil
}

// Index maps identifiers to the files carrying them. Files whose name does not
// fit the identifier policy are passed to skip (when set) and left out.
// Duplicate identifiers are kept, the caller decides whether they matter.
func (l *List) Index(skip func(name string, err error)) (byID map[string][]*File, err error) {
	deList, err := l.entries()
	if err != nil {
		return nil, e.W(err, ECode00020A)
	}

	byID = make(map[string][]*File, len(deList))
	for _, de := range deList {
		id, err := l.FileID(de.Name())
		if err != nil {
			if skip != nil {
				skip(de.Name(), err)
			}
			continue
		}
		byID[id] = append(byID[id], newFile(id, de.Name()))
	}

	return byID, nil
}

// entries returns the .sql files of the directory, in file name order
func (l *List) entries() (deList []fs.DirEntry, err error) {
	dirList, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, e.WK(err, e.KindIO, ECode000203,
				fmt.Sprintf("%s: %s", e.MsgMigrationDirNotFound, l.dir))
		}
		return nil, e.WK(err, e.KindIO, ECode000204,
			fmt.Sprintf("%s: %s", e.MsgMigrationDirUnreadable, l.dir))
	}

	deList = make([]fs.DirEntry, 0, len(dirList))
	for _, de := range dirList {
		if de.IsDir() {
			continue
		}
		if !strings.EqualFold(path.Ext(de.Name()), MigrationFileExt) {
			continue
		}
		deList = append(deList, de)
	}

	return deList, nil
}

func newFile(id, name string) *File {
	return &File{
		ID:   id,
		Name: name,
		Path: name,
	}
}

// ReadFile reads and parses the migration file
func (l *List) ReadFile(f *File) (p *Parsed, err error) {
	b, err := fs.ReadFile(l.fsys, f.Path)
	if err != nil {
		return nil, e.WK(err, e.KindIO, ECode000207,
			fmt.Sprintf("%s: %s", e.MsgMigrationFileUnreadable,
				filepath.Join(l.dir, f.Path)))
	}

	p, err = Parse(f.Name, string(b))
	if err != nil {
		return nil, e.W(err, ECode000208)
	}

	return p, nil
}
