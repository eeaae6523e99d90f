package acquire

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// HeaderProfile is one realistic browser header set used by the fetch strategy.
type HeaderProfile struct {
	Name    string            `yaml:"name"`
	Headers map[string]string `yaml:"headers"`
}

func (p HeaderProfile) UserAgent() string {
	for k, v := range p.Headers {
		if strings.EqualFold(k, "User-Agent") {
			return v
		}
	}
	return ""
}

func DefaultProfiles() []HeaderProfile {
	return []HeaderProfile{
		{
			Name: "chrome-windows",
			Headers: map[string]string{
				"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
				"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
				"Accept-Language":           "en-US,en;q=0.9",
				"Cache-Control":             "no-cache",
				"Pragma":                    "no-cache",
				"Sec-Fetch-Dest":            "document",
				"Sec-Fetch-Mode":            "navigate",
				"Sec-Fetch-Site":            "none",
				"Sec-Fetch-User":            "?1",
				"Upgrade-Insecure-Requests": "1",
			},
		},
		{
			Name: "firefox-mac",
			Headers: map[string]string{
				"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 14.7; rv:133.0) Gecko/20100101 Firefox/133.0",
				"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
				"Accept-Language":           "en-US,en;q=0.5",
				"Upgrade-Insecure-Requests": "1",
			},
		},
		{
			Name: "safari-iphone",
			Headers: map[string]string{
				"User-Agent":      "Mozilla/5.0 (iPhone; CPU iPhone OS 18_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Mobile/15E148 Safari/604.1",
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
				"Accept-Language": "en-US,en;q=0.9",
			},
		},
	}
}

type profilesFile struct {
	Profiles []HeaderProfile `yaml:"profiles"`
}

// LoadProfiles reads header profiles from a YAML file of the form
// profiles: [{name, headers}].
func LoadProfiles(path string) ([]HeaderProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	var file profilesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, fmt.Errorf("profiles file %s has no profiles", path)
	}
	for i, p := range file.Profiles {
		if p.UserAgent() == "" {
			return nil, fmt.Errorf("profile %d (%s) has no User-Agent header", i, p.Name)
		}
		if strings.TrimSpace(p.Name) == "" {
			file.Profiles[i].Name = fmt.Sprintf("profile-%d", i)
		}
	}
	return file.Profiles, nil
}
