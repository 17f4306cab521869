package dto

// ActivityLogQuery mirrors supported activity log filters.
type ActivityLogQuery struct {
	ActorID    *int64
	Action     string
	TargetType string
	TargetID   *int64
	From       string
	To         string
	Page       int
	PageSize   int
}
