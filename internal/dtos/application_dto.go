package dtos

// SyncItem is one raw tuple from an ingestion source: a scraped extension
// card, an email-classification result, or a manual form row. Fields are
// duck-typed on purpose; the Normalizer is the only place that interprets
// them.
type SyncItem struct {
	Company     string `json:"company"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	Date        string `json:"date"`         // extension scrape time
	DateApplied string `json:"date_applied"` // manual / email forms
	JobLink     string `json:"job_link"`
	Source      string `json:"source"` // informational; the batch source wins
}

// SyncRequest is the POST /sync payload.
type SyncRequest struct {
	Source string     `json:"source" binding:"required,oneof=manual linkedin_extension email_sync auto_application"`
	Items  []SyncItem `json:"items" binding:"required"`
}

// SyncResponse reports what a batch did ("Found N jobs, added M").
type SyncResponse struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Updated int `json:"updated"`
}

// CreateApplicationRequest is the manual-entry form.
type CreateApplicationRequest struct {
	Company     string `json:"company" binding:"required"`
	Role        string `json:"role" binding:"required"`
	Status      string `json:"status"`
	DateApplied string `json:"date_applied"`
	JobLink     string `json:"job_link"`
}

// UpdateApplicationRequest patches an existing application. Nil fields are
// left untouched.
type UpdateApplicationRequest struct {
	Company     *string `json:"company"`
	Role        *string `json:"role"`
	Status      *string `json:"status"`
	DateApplied *string `json:"date_applied"`
	JobLink     *string `json:"job_link"`
	AIChance    *int    `json:"ai_chance" binding:"omitempty,min=0,max=100"`
}

// StatsQueryParams binds the GET /stats query string.
type StatsQueryParams struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	GroupBy   string `form:"group_by,default=month" binding:"omitempty,oneof=day month year"`
}
