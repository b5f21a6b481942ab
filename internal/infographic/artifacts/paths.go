package artifacts

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

// SlideImagePath is where a rendered slide image is stored. Each render gets
// a fresh name so a regenerated slide never overwrites an exported one.
func SlideImagePath(owner, projectID, slideID string) string {
	return fmt.Sprintf("users/%s/projects/%s/slides/%s-%s.png", owner, projectID, slideID, uuid.New().String())
}

// ExportPath is where an export bundle is stored.
func ExportPath(owner, projectID, ext string) string {
	return fmt.Sprintf("users/%s/projects/%s/exports/%s.%s", owner, projectID, uuid.New().String(), ext)
}

// OwnedBy reports whether path lies under owner's prefix.
func OwnedBy(owner, path string) bool {
	if owner == "" || strings.Contains(owner, "/") || strings.Contains(path, "..") {
		return false
	}
	return strings.HasPrefix(path, "users/"+owner+"/")
}

// CheckOwned fails with ErrPermissionDenied when a slide of script points at
// an object outside owner's prefix.
func CheckOwned(owner string, script *domain.Script) error {
	if script == nil {
		return nil
	}
	for _, s := range script.Slides {
		if s.ImagePath != "" && !OwnedBy(owner, s.ImagePath) {
			return domain.Wrap(domain.CategoryAuth, "check asset owner",
				fmt.Errorf("%w: slide %s", domain.ErrPermissionDenied, s.ID))
		}
	}
	return nil
}
