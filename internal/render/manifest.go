package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
)

// Manifest maps route modules to the asset files they pull in. It is the
// build output the bundler writes next to the client bundle.
type Manifest map[string][]string

// LoadManifest reads a manifest JSON file. A missing file yields an empty
// manifest, matching dev mode where no build output exists yet.
func LoadManifest(filePath string) (Manifest, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return m, nil
}

// PreloadLinks renders the link tags for the assets of the given modules.
// Duplicate assets across modules emit a single tag.
func (m Manifest) PreloadLinks(modules []string) string {
	var b strings.Builder
	seen := make(map[string]bool)
	for _, module := range modules {
		for _, asset := range m[module] {
			if seen[asset] {
				continue
			}
			seen[asset] = true
			b.WriteString(preloadLink(asset))
		}
	}
	return b.String()
}

func preloadLink(asset string) string {
	switch path.Ext(asset) {
	case ".js":
		return fmt.Sprintf(`<link rel="modulepreload" crossorigin href="%s">`, asset)
	case ".css":
		return fmt.Sprintf(`<link rel="stylesheet" href="%s">`, asset)
	case ".woff":
		return fmt.Sprintf(`<link rel="preload" href="%s" as="font" type="font/woff" crossorigin>`, asset)
	case ".woff2":
		return fmt.Sprintf(`<link rel="preload" href="%s" as="font" type="font/woff2" crossorigin>`, asset)
	case ".gif", ".jpg", ".jpeg", ".png", ".svg", ".webp":
		ext := strings.TrimPrefix(path.Ext(asset), ".")
		if ext == "jpg" {
			ext = "jpeg"
		}
		if ext == "svg" {
			ext = "svg+xml"
		}
		return fmt.Sprintf(`<link rel="preload" href="%s" as="image" type="image/%s">`, asset, ext)
	default:
		return ""
	}
}
