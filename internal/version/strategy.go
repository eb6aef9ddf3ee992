// internal/version/strategy.go
package version

// SyncDirection names the four sync topologies a merge can serve.
type SyncDirection string

const (
	DirectionUpstreamToCollection SyncDirection = "upstream_to_collection"
	DirectionCollectionToProject  SyncDirection = "collection_to_project"
	DirectionProjectToCollection  SyncDirection = "project_to_collection"
	DirectionBidirectional        SyncDirection = "bidirectional"
)

// ConflictAction says what a sync merge does when files genuinely diverge.
type ConflictAction string

const (
	// ConflictPrompt stops for the user on every conflict.
	ConflictPrompt ConflictAction = "prompt"
	// ConflictMarkers writes marker files and continues.
	ConflictMarkers ConflictAction = "markers"
	// ConflictKeepTarget leaves the target side untouched.
	ConflictKeepTarget ConflictAction = "keep_target"
)

// Strategy is the policy a sync merge runs under.
type Strategy struct {
	AutoMerge      bool
	PreferSource   bool
	PreferTarget   bool
	CreateBackup   bool
	ConflictAction ConflictAction
}

// RecommendedStrategy maps a sync direction and pending-change state to a
// default policy. PROJECT_TO_COLLECTION never auto-merges unattended:
// changes flowing back into the shared collection always go through a
// prompt, because that side is the versioned source of truth.
func RecommendedStrategy(direction SyncDirection, hasLocalChanges, hasRemoteChanges bool) Strategy {
	switch direction {
	case DirectionUpstreamToCollection:
		return Strategy{
			AutoMerge:      !hasLocalChanges,
			PreferSource:   !hasLocalChanges,
			CreateBackup:   true,
			ConflictAction: ConflictMarkers,
		}

	case DirectionCollectionToProject:
		return Strategy{
			AutoMerge:      true,
			PreferSource:   !hasLocalChanges,
			PreferTarget:   hasLocalChanges,
			CreateBackup:   false,
			ConflictAction: ConflictKeepTarget,
		}

	case DirectionProjectToCollection:
		return Strategy{
			AutoMerge:      false,
			PreferTarget:   true,
			CreateBackup:   true,
			ConflictAction: ConflictPrompt,
		}

	case DirectionBidirectional:
		return Strategy{
			AutoMerge:      !(hasLocalChanges && hasRemoteChanges),
			CreateBackup:   true,
			ConflictAction: ConflictMarkers,
		}
	}

	// Unknown directions get the most conservative defaults.
	return Strategy{
		AutoMerge:      false,
		PreferTarget:   true,
		CreateBackup:   true,
		ConflictAction: ConflictPrompt,
	}
}
