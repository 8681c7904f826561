package service

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Problems found in a downloaded XBRL bundle
var (
	ErrNotArchive    = errors.New("not a zip archive")
	ErrNoEntryPoint  = errors.New("no XBRL instance under XBRL/PublicDoc")
	ErrManyInstances = errors.New("more than one XBRL instance under XBRL/PublicDoc")
)

const xbrlArchiveSuffix = "_xbrl.zip"

// VerifyResult contains what was read from one XBRL bundle
type VerifyResult struct {
	Path         string
	EntryPoint   string
	ContextCount int
	FactCount    int
	EdinetCode   string
	Checksum     string
}

// Verifier checks that downloaded XBRL bundles are readable archives with a
// single instance document.
type Verifier struct {
	fs afero.Fs
}

// NewVerifier creates a new Verifier
func NewVerifier(fs afero.Fs) *Verifier {
	return &Verifier{fs: fs}
}

// VerifyArchive opens one {docID}_xbrl.zip and parses its instance document
func (v *Verifier) VerifyArchive(name string) (*VerifyResult, error) {
	content, err := afero.ReadFile(v.fs, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	sum := sha256.Sum256(content)
	result := &VerifyResult{
		Path:     name,
		Checksum: hex.EncodeToString(sum[:]),
	}

	archive, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return result, fmt.Errorf("%s: %w: %v", name, ErrNotArchive, err)
	}

	var instance *zip.File
	for _, f := range archive.File {
		dir, base := path.Split(f.Name)
		if !strings.EqualFold(dir, "XBRL/PublicDoc/") || !strings.HasSuffix(base, ".xbrl") {
			continue
		}
		if instance != nil {
			return result, fmt.Errorf("%s: %w", name, ErrManyInstances)
		}
		instance = f
	}
	if instance == nil {
		return result, fmt.Errorf("%s: %w", name, ErrNoEntryPoint)
	}
	result.EntryPoint = instance.Name

	rc, err := instance.Open()
	if err != nil {
		return result, fmt.Errorf("failed to open %s in %s: %w", instance.Name, name, err)
	}
	defer rc.Close()

	if err := parseInstance(rc, result); err != nil {
		return result, fmt.Errorf("failed to parse %s in %s: %w", instance.Name, name, err)
	}
	return result, nil
}

// Walk verifies every XBRL bundle under root. fn is called once per bundle;
// a verification failure is passed to fn and does not stop the walk.
func (v *Verifier) Walk(root string, fn func(*VerifyResult, error)) error {
	return afero.Walk(v.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), xbrlArchiveSuffix) {
			return nil
		}
		fn(v.VerifyArchive(filepath.Clean(p)))
		return nil
	})
}

// parseInstance counts contexts and facts in an XBRL instance and picks up
// the filer code from the DEI block.
func parseInstance(r io.Reader, result *VerifyResult) error {
	decoder := xml.NewDecoder(r)

	var inEdinetCode bool
	var sawRoot bool

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch t := token.(type) {
		case xml.StartElement:
			if !sawRoot {
				if t.Name.Local != "xbrl" {
					return fmt.Errorf("unexpected root element %q", t.Name.Local)
				}
				sawRoot = true
				continue
			}

			if t.Name.Local == "context" {
				result.ContextCount++
				continue
			}

			if hasContextRef(t) {
				result.FactCount++
				inEdinetCode = t.Name.Local == "EDINETCodeDEI"
			}

		case xml.EndElement:
			inEdinetCode = false

		case xml.CharData:
			if inEdinetCode && result.EdinetCode == "" {
				result.EdinetCode = strings.TrimSpace(string(t))
			}
		}
	}

	if !sawRoot {
		return errors.New("empty instance document")
	}
	return nil
}

func hasContextRef(t xml.StartElement) bool {
	for _, attr := range t.Attr {
		if attr.Name.Local == "contextRef" {
			return true
		}
	}
	return false
}
