package model

// DocumentPage is one extracted unit of the source site. Pages are produced by
// the extraction collaborator and consumed once per ingestion pass; the core
// never persists them.
type DocumentPage struct {
	URL              string   `json:"url"`
	RawText          string   `json:"raw_text"`
	HeadingHierarchy []string `json:"heading_hierarchy"`
}
