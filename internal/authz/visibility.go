// Package authz holds the visibility and ownership decisions for catalog
// resources. Every function is pure: decisions depend only on the viewer,
// the owner, and the resource's visibility tier, so the same rules apply
// at every call site. A viewer ID of 0 means an anonymous viewer;
// persisted IDs start at 1.
package authz

import "github.com/clipvault/backend/internal/models"

// CanView decides read access for a direct fetch. Unlisted resources are
// reachable by anyone holding the identifier; only listings hide them.
// Callers map a false result for private resources to a not-found
// outcome so existence is never leaked.
func CanView(viewerID, ownerID int64, tier models.Visibility) bool {
	switch tier {
	case models.VisibilityPublic, models.VisibilityUnlisted:
		return true
	case models.VisibilityPrivate:
		return viewerID != 0 && viewerID == ownerID
	default:
		return false
	}
}

// CanModify decides write, update, and delete access: owner only. Callers
// map a false result to a forbidden outcome; existence is already implied
// by the context of a mutation.
func CanModify(viewerID, ownerID int64) bool {
	return viewerID != 0 && viewerID == ownerID
}

// CanDeleteComment allows the comment's author or the owner of the video
// it belongs to.
func CanDeleteComment(viewerID, authorID, videoOwnerID int64) bool {
	return viewerID != 0 && (viewerID == authorID || viewerID == videoOwnerID)
}

// ListClause builds the visibility predicate for listing queries as a
// single clause with ? placeholders plus its bound arguments. With no
// requested tier the effective rule is "public, or owned by the viewer";
// anonymous viewers collapse to public only. Requesting unlisted or
// private restricts the listing to the viewer's own rows.
func ListClause(viewerID int64, requested models.Visibility) (string, []any) {
	switch requested {
	case models.VisibilityPublic:
		return "v.visibility = ?", []any{string(models.VisibilityPublic)}
	case models.VisibilityUnlisted, models.VisibilityPrivate:
		return "v.visibility = ? AND v.uploader_id = ?", []any{string(requested), ownerArg(viewerID)}
	default:
		return "(v.visibility = ? OR v.uploader_id = ?)", []any{string(models.VisibilityPublic), ownerArg(viewerID)}
	}
}

// ownerArg maps an anonymous viewer to an impossible owner ID so the
// ownership arm of the predicate matches nothing.
func ownerArg(viewerID int64) int64 {
	if viewerID == 0 {
		return -1
	}
	return viewerID
}
