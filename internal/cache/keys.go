package cache

// Key families. The family is the part before the first colon and labels
// the invalidation metric.
const (
	FamilyDocument     = "doc"
	FamilyActiveReview = "active-review"
	FamilyRevisions    = "revisions"
	FamilyComments     = "comments"
	FamilyMyDocuments  = "my-documents"
	FamilyMyReviews    = "my-reviews"
	FamilyAssigned     = "assigned-to-me"
	FamilyArchived     = "archived-documents"
	FamilyTemplates    = "templates"
)

func DocumentKey(id string) string { return FamilyDocument + ":" + id }
func ActiveReviewKey(id string) string { return FamilyActiveReview + ":" + id }
func RevisionsKey(id string) string { return FamilyRevisions + ":" + id }
func CommentsKey(id string) string { return FamilyComments + ":" + id }
func MyDocumentsKey(author string) string { return FamilyMyDocuments + ":" + author }
func MyReviewsKey(reviewer string) string { return FamilyMyReviews + ":" + reviewer }
func AssignedKey(actor string) string { return FamilyAssigned + ":" + actor }
func ArchivedKey() string { return FamilyArchived }
func TemplatesKey(projectID string) string { return FamilyTemplates + ":" + projectID }
