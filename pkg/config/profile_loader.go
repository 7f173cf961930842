package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AttachmentMapping describes how a provider-side attachment "type" string
// maps onto a NormalizedAttachment.Kind.
type AttachmentMapping struct {
	ProviderType string `yaml:"provider_type" json:"provider_type"`
	Kind         string `yaml:"kind" json:"kind"`
}

// PlatformProfile is a static, config-file-loaded description of a provider
// variant (page-messaging vs photo-sharing). It is not tenant-owned and is
// not persisted in the transactional store; it gives the webhook normalizer
// and outbound send client a table-driven extension point for future
// variants instead of hardcoding each one.
type PlatformProfile struct {
	Name                string              `yaml:"name" json:"name"`
	Variant             string              `yaml:"variant" json:"variant"` // "page" | "photo"
	APIBaseURL          string              `yaml:"api_base_url" json:"api_base_url"`
	APIVersion          string              `yaml:"api_version" json:"api_version"`
	SendEndpointTmpl    string              `yaml:"send_endpoint_template" json:"send_endpoint_template"`
	ChallengeQueryParam string              `yaml:"challenge_query_param" json:"challenge_query_param"`
	Attachments         []AttachmentMapping `yaml:"attachments" json:"attachments"`
}

// AttachmentKind resolves a provider-specific attachment type string to its
// normalized kind, falling back to "unknown" when no mapping exists.
func (p *PlatformProfile) AttachmentKind(providerType string) string {
	for _, m := range p.Attachments {
		if m.ProviderType == providerType {
			return m.Kind
		}
	}
	return "unknown"
}

// SendEndpoint renders the outbound send URL for a given recipient/page scope
// by substituting {api_base}, {api_version}, and {scope_id} in the template.
func (p *PlatformProfile) SendEndpoint(scopeID string) string {
	out := p.SendEndpointTmpl
	out = strings.ReplaceAll(out, "{api_base}", p.APIBaseURL)
	out = strings.ReplaceAll(out, "{api_version}", p.APIVersion)
	out = strings.ReplaceAll(out, "{scope_id}", scopeID)
	return out
}

// LoadProfile loads a single platform profile YAML by variant code.
// It searches the profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*PlatformProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load platform profile %q: %w", code, err)
	}

	var profile PlatformProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse platform profile %q: %w", code, err)
	}

	if profile.Variant == "" {
		profile.Variant = code
	}

	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml file in the profiles directory,
// keyed by variant code.
func LoadAllProfiles(profilesDir string) (map[string]*PlatformProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*PlatformProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile PlatformProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Variant == "" {
			base := filepath.Base(path)
			profile.Variant = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Variant] = &profile
	}

	return profiles, nil
}
