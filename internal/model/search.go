package model

// SearchParams are the inputs of one user search.
// Zero Page and PerPage mean "use the default".
type SearchParams struct {
	Q       string `json:"q"`
	Page    int    `json:"page,omitempty"`
	PerPage int    `json:"per_page,omitempty"`
	Sort    string `json:"sort,omitempty"`
	Order   string `json:"order,omitempty"`
}

// SearchResponse is the result of one orchestrated search.
// TotalCount is always the upstream count, never len(Users).
type SearchResponse struct {
	Users      []UserRecord `json:"users"`
	TotalCount int          `json:"total_count"`
	RateLimit  *RateLimit   `json:"rateLimit,omitempty"`
}
