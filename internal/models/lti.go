package models

import "strings"

// LaunchContext is an authenticated, role-classified LTI launch.
type LaunchContext struct {
	Kind           ResourceKind
	ResourceLinkID string
	ResourceTitle  string
	ContextID      string
	ContextTitle   string
	ConsumerSite   ConsumerSite
	LTIUserID      string
	IsInstructor   bool
}

// ResourceLTIID is the resource link id stripped of its site prefix.
func (l LaunchContext) ResourceLTIID() string {
	return DeriveLTIID(l.ResourceLinkID, l.ConsumerSite.Domain)
}

// DeriveLTIID strips a "<domain>-" qualifier some consumer sites prepend to
// resource link ids, so the same link matches across sites.
func DeriveLTIID(resourceLinkID, domain string) string {
	resourceLinkID = strings.TrimSpace(resourceLinkID)
	if domain == "" {
		return resourceLinkID
	}
	if stripped, ok := strings.CutPrefix(resourceLinkID, domain+"-"); ok && stripped != "" {
		return stripped
	}
	return resourceLinkID
}
