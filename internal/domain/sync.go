package domain

// MatterStatusFor maps an agenda item status onto the status its matter
// should take. The second result is false when the item status leaves the
// matter untouched.
func MatterStatusFor(s ItemStatus) (MatterStatus, bool) {
	switch s {
	case ItemPending:
		return MatterInAgenda, true
	case ItemInDiscussion:
		return MatterInDiscussion, true
	case ItemInVoting:
		return MatterInVoting, true
	case ItemApproved:
		return MatterApproved, true
	case ItemRejected:
		return MatterRejected, true
	case ItemPostponed:
		return MatterInAgenda, true
	case ItemWithdrawn:
		return MatterArchived, true
	case ItemUnderReview, ItemConcluded:
		return "", false
	}
	// unknown statuses (a corrupt row) leave the matter untouched too
	return "", false
}
