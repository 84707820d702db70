package catalog

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/thrive-launcher/launcher/internal/platform"
)

type manifestJSON struct {
	Versions []versionJSON `json:"versions"`
}

type versionJSON struct {
	ID         manifestID     `json:"id"`
	ReleaseNum string         `json:"releaseNum"`
	Stable     bool           `json:"stable"`
	Downloads  []downloadJSON `json:"downloads"`
}

type downloadJSON struct {
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	URL        string `json:"url"`
	FileName   string `json:"fileName"`
	Hash       string `json:"hash"`
	FolderName string `json:"folderName"`
}

// manifestID accepts ids written either as JSON numbers or strings.
type manifestID string

func (m *manifestID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = manifestID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*m = manifestID(n.String())
	return nil
}

// Catalog is an immutable set of versions parsed from a manifest.
type Catalog struct {
	versions []Version
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Catalog, error) {
	var m manifestJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCatalog, err)
	}
	if m.Versions == nil {
		return nil, fmt.Errorf("%w: missing \"versions\" list", ErrMalformedCatalog)
	}

	seen := make(map[string]bool, len(m.Versions))
	versions := make([]Version, 0, len(m.Versions))
	for i, vj := range m.Versions {
		v, err := convertVersion(vj)
		if err != nil {
			return nil, fmt.Errorf("%w: version %d: %v", ErrMalformedCatalog, i, err)
		}
		if seen[v.ID] {
			return nil, fmt.Errorf("%w: duplicate version id %q", ErrMalformedCatalog, v.ID)
		}
		seen[v.ID] = true
		versions = append(versions, v)
	}

	return &Catalog{versions: versions}, nil
}

func convertVersion(vj versionJSON) (Version, error) {
	id := strings.TrimSpace(string(vj.ID))
	if id == "" {
		return Version{}, fmt.Errorf("missing id")
	}
	if strings.TrimSpace(vj.ReleaseNum) == "" {
		return Version{}, fmt.Errorf("version %s: missing releaseNum", id)
	}

	v := Version{
		ID:         id,
		ReleaseNum: strings.TrimSpace(vj.ReleaseNum),
		Stable:     vj.Stable,
	}

	seen := make(map[Platform]bool, len(vj.Downloads))
	for j, dj := range vj.Downloads {
		d, err := convertDownload(id, dj)
		if err != nil {
			return Version{}, fmt.Errorf("version %s: download %d: %w", id, j, err)
		}
		if seen[d.Platform] {
			return Version{}, fmt.Errorf("version %s: download %d: duplicate platform %s", id, j, d.Platform)
		}
		seen[d.Platform] = true
		v.downloads = append(v.downloads, d)
	}

	return v, nil
}

func convertDownload(versionID string, dj downloadJSON) (PlatformDownload, error) {
	goos := platform.NormalizeOS(dj.OS)
	if goos == "" {
		return PlatformDownload{}, fmt.Errorf("unknown os %q", dj.OS)
	}

	var arch string
	if strings.TrimSpace(dj.Arch) != "" {
		arch = platform.NormalizeArch(dj.Arch)
		if arch == "" {
			return PlatformDownload{}, fmt.Errorf("unknown arch %q", dj.Arch)
		}
	}

	if dj.URL == "" {
		return PlatformDownload{}, fmt.Errorf("missing url")
	}
	if dj.Hash == "" {
		return PlatformDownload{}, fmt.Errorf("missing hash")
	}

	fileName := dj.FileName
	if fileName == "" {
		fileName = path.Base(dj.URL)
	}
	if err := validateName(fileName); err != nil {
		return PlatformDownload{}, fmt.Errorf("fileName: %w", err)
	}
	if err := validateName(dj.FolderName); err != nil {
		return PlatformDownload{}, fmt.Errorf("folderName: %w", err)
	}

	return PlatformDownload{
		VersionID:  versionID,
		Platform:   Platform{OS: goos, Arch: arch},
		URL:        dj.URL,
		FileName:   fileName,
		Hash:       strings.TrimSpace(dj.Hash),
		FolderName: dj.FolderName,
	}, nil
}

// validateName rejects names that would escape the staging or install roots.
func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty")
	case name == "." || name == "..":
		return fmt.Errorf("invalid name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("name %q must not contain path separators", name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("name %q must not start with a dot", name)
	}
	return nil
}

// Versions returns all versions in manifest order.
func (c *Catalog) Versions() []Version {
	out := make([]Version, len(c.versions))
	copy(out, c.versions)
	return out
}

// VersionByID looks up a version by its manifest id.
func (c *Catalog) VersionByID(id string) (Version, error) {
	for _, v := range c.versions {
		if v.ID == id {
			return v, nil
		}
	}
	return Version{}, fmt.Errorf("%w: %s", ErrVersionNotFound, id)
}

// Recommended returns the stable version with the highest release label.
func (c *Catalog) Recommended() (Version, error) {
	var stable []Version
	for _, v := range c.versions {
		if v.Stable {
			stable = append(stable, v)
		}
	}
	if len(stable) == 0 {
		return Version{}, ErrNoStableVersion
	}

	sortNewestFirst(stable)
	return stable[0], nil
}

// DownloadFor returns the record of version v matching p. An exact OS/arch
// record wins over an arch-neutral one for the same OS.
func (c *Catalog) DownloadFor(v Version, p Platform) (PlatformDownload, error) {
	var neutral *PlatformDownload
	for i, d := range v.downloads {
		if d.Platform.OS != p.OS {
			continue
		}
		if d.Platform.Arch == p.Arch {
			return d, nil
		}
		if d.Platform.Arch == "" && neutral == nil {
			neutral = &v.downloads[i]
		}
	}
	if neutral != nil {
		return *neutral, nil
	}
	return PlatformDownload{}, fmt.Errorf("%w: version %s on %s", ErrNoDownloadForPlatform, v.ReleaseNum, p)
}

// ValidVersions returns the versions that have a download for p, newest first.
func (c *Catalog) ValidVersions(p Platform) []Version {
	var out []Version
	for _, v := range c.versions {
		if _, err := c.DownloadFor(v, p); err == nil {
			out = append(out, v)
		}
	}
	sortNewestFirst(out)
	return out
}

// sortNewestFirst orders by semantic version descending. Labels that do not
// parse as semver sort after those that do and keep manifest order.
func sortNewestFirst(versions []Version) {
	parsed := make([]*semver.Version, len(versions))
	for i, v := range versions {
		if sv, err := semver.NewVersion(v.ReleaseNum); err == nil {
			parsed[i] = sv
		}
	}

	idx := make([]int, len(versions))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool {
		pa, pb := parsed[idx[a]], parsed[idx[b]]
		switch {
		case pa != nil && pb != nil:
			return pa.GreaterThan(pb)
		case pa != nil:
			return true
		default:
			return false
		}
	})

	sorted := make([]Version, len(versions))
	for i, j := range idx {
		sorted[i] = versions[j]
	}
	copy(versions, sorted)
}

// PlatformOf converts detected platform info to a catalog Platform.
func PlatformOf(info *platform.Info) Platform {
	return Platform{OS: info.OS, Arch: info.Arch}
}
