package feed

// Reading is one bay as reported by the sensor API.
type Reading struct {
	SpotID int64  `json:"id"`
	Label  string `json:"label,omitempty"`
	State  int    `json:"state"`
}

// APIResponse models the top-level structure of the sensor API's response.
type APIResponse struct {
	Code int     `json:"code"`
	Data APIPage `json:"data"`
}

// APIPage is one page of readings.
type APIPage struct {
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
	Total    int       `json:"total"`
	Items    []Reading `json:"items"`
}
