// Package cloudinary guesses Cloudinary delivery URLs for migrated images and checks
// which of them exist.
package cloudinary

import (
	"strconv"
	"strings"

	"sayu-ops/internal/config"
)

const DefaultBaseURL = "https://res.cloudinary.com"

// Candidates expands patterns into delivery URLs of the form
// {base}/{cloud}/image/upload/{transform/}{version/}{folder}/{name}.{ext}.
// The result is de-duplicated and always in the same order for the same input.
func Candidates(baseURL, cloud string, patterns []config.ProbePattern) []string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		for _, name := range names(p) {
			for _, transform := range orEmpty(p.Transforms) {
				for _, version := range orEmpty(p.Versions) {
					for _, ext := range extensions(p.Extensions) {
						u := deliveryURL(baseURL, cloud, transform, version, p.Folder, name, ext)
						if seen[u] {
							continue
						}
						seen[u] = true
						out = append(out, u)
					}
				}
			}
		}
	}
	return out
}

func names(p config.ProbePattern) []string {
	ids := append([]string(nil), p.IDs...)
	if p.IDTo > 0 {
		for id := p.IDFrom; id <= p.IDTo; id++ {
			ids = append(ids, strconv.Itoa(id))
		}
	}
	if !strings.Contains(p.Name, "{id}") {
		ids = []string{""}
	}

	var out []string
	for _, id := range ids {
		for _, prefix := range orEmpty(p.Prefixes) {
			name := strings.NewReplacer("{prefix}", prefix, "{id}", id).Replace(p.Name)
			name = strings.Trim(name, "-_")
			if name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func orEmpty(list []string) []string {
	if len(list) == 0 {
		return []string{""}
	}
	return list
}

func extensions(list []string) []string {
	if len(list) == 0 {
		return []string{"jpg"}
	}
	return list
}

func deliveryURL(base, cloud, transform, version, folder, name, ext string) string {
	parts := []string{base, cloud, "image", "upload"}
	if transform != "" {
		parts = append(parts, strings.Trim(transform, "/"))
	}
	if version != "" {
		if !strings.HasPrefix(version, "v") {
			version = "v" + version
		}
		parts = append(parts, version)
	}
	if folder = strings.Trim(folder, "/"); folder != "" {
		parts = append(parts, folder)
	}
	u := strings.Join(parts, "/") + "/" + name
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		u += "." + ext
	}
	return u
}
