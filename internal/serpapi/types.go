package serpapi

// MapsSearchPage is one page of a google_maps search. The continuation
// token lives under the provider's pagination object; its absence
// terminates the page sequence.
type MapsSearchPage struct {
	LocalResults []map[string]any `json:"local_results"`
	Pagination   struct {
		NextPageToken string `json:"next_page_token"`
	} `json:"serpapi_pagination"`
}

// NextPageToken returns the continuation token for the following page, or
// an empty string when this is the last page.
func (p *MapsSearchPage) NextPageToken() string {
	return p.Pagination.NextPageToken
}

// ReviewsPage is the first page of a google_maps_reviews fetch for one
// place.
type ReviewsPage struct {
	Reviews []map[string]any `json:"reviews"`
}
